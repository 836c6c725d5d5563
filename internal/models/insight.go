package models

import (
	"time"

	"github.com/google/uuid"
)

// InsightKind tells which analyzer produced an insight.
type InsightKind string

const (
	InsightTrend       InsightKind = "trend"
	InsightAnomaly     InsightKind = "anomaly"
	InsightCapacity    InsightKind = "capacity"
	InsightCorrelation InsightKind = "correlation"
	InsightSeasonality InsightKind = "seasonality"
)

// Insight is an immutable, ranked analytical finding handed to the insight store.
// Build it with NewInsight; fields are never modified afterwards.
type Insight struct {
	ID              string      `json:"id"`
	Kind            InsightKind `json:"kind"`
	Metric          string      `json:"metric"`
	TenantID        string      `json:"tenant_id"`
	Title           string      `json:"title"`
	Summary         string      `json:"summary"`
	Severity        Severity    `json:"severity"`
	Impact          float64     `json:"impact"`
	Confidence      float64     `json:"confidence"`
	Recommendations []string    `json:"recommendations,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`

	Trend       *TrendResult       `json:"trend,omitempty"`
	Anomaly     *AnomalyResult     `json:"anomaly,omitempty"`
	Capacity    *CapacityResult    `json:"capacity,omitempty"`
	Correlation *CorrelationResult `json:"correlation,omitempty"`
	Seasonality *SeasonalPattern   `json:"seasonality,omitempty"`
}

// InsightDraft carries the fields supplied by the analyzer-specific builders.
type InsightDraft struct {
	Kind            InsightKind
	Metric          string
	TenantID        string
	Title           string
	Summary         string
	Severity        Severity
	Impact          float64
	Confidence      float64
	Recommendations []string

	Trend       *TrendResult
	Anomaly     *AnomalyResult
	Capacity    *CapacityResult
	Correlation *CorrelationResult
	Seasonality *SeasonalPattern
}

// NewInsight stamps a draft with an id and creation time. Slices and payloads are
// copied so later changes to the draft's sources cannot leak into the insight.
func NewInsight(d InsightDraft, createdAt time.Time) Insight {
	in := Insight{
		ID:              uuid.NewString(),
		Kind:            d.Kind,
		Metric:          d.Metric,
		TenantID:        d.TenantID,
		Title:           d.Title,
		Summary:         d.Summary,
		Severity:        d.Severity,
		Impact:          d.Impact,
		Confidence:      d.Confidence,
		Recommendations: append([]string(nil), d.Recommendations...),
		CreatedAt:       createdAt.UTC(),
	}
	if d.Trend != nil {
		trend := *d.Trend
		trend.Forecast = append([]ForecastPoint(nil), d.Trend.Forecast...)
		in.Trend = &trend
	}
	if d.Anomaly != nil {
		anomaly := *d.Anomaly
		in.Anomaly = &anomaly
	}
	if d.Capacity != nil {
		capacity := *d.Capacity
		capacity.Recommendations = append([]Recommendation(nil), d.Capacity.Recommendations...)
		in.Capacity = &capacity
	}
	if d.Correlation != nil {
		corr := *d.Correlation
		corr.CorrelatedMetrics = append([]CorrelatedMetric(nil), d.Correlation.CorrelatedMetrics...)
		in.Correlation = &corr
	}
	if d.Seasonality != nil {
		season := *d.Seasonality
		season.Peaks = append([]int(nil), d.Seasonality.Peaks...)
		season.Valleys = append([]int(nil), d.Seasonality.Valleys...)
		season.Buckets = append([]SeasonalBucket(nil), d.Seasonality.Buckets...)
		in.Seasonality = &season
	}
	return in
}
