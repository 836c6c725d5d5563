package models

import "time"

// AnalyzeRequest asks for an on-demand analysis of a single series.
type AnalyzeRequest struct {
	Key     SeriesKey
	Window  time.Duration
	Horizon int
	End     time.Time
}

// AnalyzeResponse bundles every per-series analysis for one request.
type AnalyzeResponse struct {
	Trend       TrendResult       `json:"trend"`
	Anomalies   []AnomalyResult   `json:"anomalies"`
	Seasonality []SeasonalPattern `json:"seasonality,omitempty"`
	SampleCount int               `json:"sample_count"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
}

// ListInsightsRequest filters the latest ranked insight set. With History set the
// insights of earlier runs are read from the persistent store instead.
type ListInsightsRequest struct {
	TenantID string
	Kind     InsightKind
	Limit    int
	History  bool
}

// InsightSnapshot is the ranked output of the most recent run.
type InsightSnapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Insights    []Insight `json:"insights"`
}
