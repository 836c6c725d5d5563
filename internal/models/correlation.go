package models

import "time"

// Direction is the sign of a trend.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight maps a severity onto (0,1] for impact scoring.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	default:
		return 0.25
	}
}

// Rank orders severities; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AnomalyType classifies why a sample was flagged.
type AnomalyType string

const (
	AnomalySpike   AnomalyType = "spike"
	AnomalyDip     AnomalyType = "dip"
	AnomalyDrift   AnomalyType = "drift"
	AnomalyMissing AnomalyType = "missing"
)

// PeriodType names a seasonal cycle.
type PeriodType string

const (
	PeriodHourly PeriodType = "hourly"
	PeriodDaily  PeriodType = "daily"
	PeriodWeekly PeriodType = "weekly"
)

// ForecastPoint is one projected step. Lower <= Predicted <= Upper always holds.
type ForecastPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Step       int       `json:"step"`
	Predicted  float64   `json:"predicted"`
	Lower      float64   `json:"lower"`
	Upper      float64   `json:"upper"`
	Confidence float64   `json:"confidence"`
}

// TrendResult summarises the linear trend of one series.
type TrendResult struct {
	Metric        string          `json:"metric"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Window        time.Duration   `json:"window"`
	Direction     Direction       `json:"direction"`
	ChangeRatePct float64         `json:"change_rate_pct"`
	Slope         float64         `json:"slope"`
	Confidence    float64         `json:"confidence"`
	SampleCount   int             `json:"sample_count"`
	Interval      time.Duration   `json:"interval,omitempty"`
	Forecast      []ForecastPoint `json:"forecast,omitempty"`
}

// AnomalyResult is one flagged observation (or gap, for AnomalyMissing).
type AnomalyResult struct {
	Metric         string      `json:"metric"`
	TenantID       string      `json:"tenant_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Value          float64     `json:"value"`
	ExpectedValue  float64     `json:"expected_value"`
	DeviationScore float64     `json:"deviation_score"`
	Type           AnomalyType `json:"type"`
	Severity       Severity    `json:"severity"`
}

// CorrelatedMetric is one retained partner of a primary metric.
type CorrelatedMetric struct {
	Metric       string        `json:"metric"`
	Coefficient  float64       `json:"coefficient"`
	Significance float64       `json:"significance"`
	Lag          int           `json:"lag"`
	LagDuration  time.Duration `json:"lag_duration"`
}

// CorrelationResult lists the metrics correlated with PrimaryMetric.
type CorrelationResult struct {
	PrimaryMetric     string             `json:"primary_metric"`
	TenantID          string             `json:"tenant_id,omitempty"`
	CorrelatedMetrics []CorrelatedMetric `json:"correlated_metrics"`
}

// Recommendation is a tiered capacity action.
type Recommendation struct {
	Priority    string `json:"priority"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// CapacityResult projects a component's utilization towards its threshold.
type CapacityResult struct {
	Component            string           `json:"component"`
	TenantID             string           `json:"tenant_id,omitempty"`
	CurrentUtilization   float64          `json:"current_utilization"`
	PredictedUtilization float64          `json:"predicted_utilization"`
	GrowthPerDay         float64          `json:"growth_per_day"`
	TimeToCapacity       string           `json:"time_to_capacity"`
	DaysToCapacity       float64          `json:"days_to_capacity"`
	HasCrossing          bool             `json:"has_crossing"`
	Confidence           float64          `json:"confidence"`
	Recommendations      []Recommendation `json:"recommendations"`
}

// SeasonalBucket holds the statistics of one slot of a seasonal cycle.
type SeasonalBucket struct {
	Index  int     `json:"index"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// SeasonalPattern describes a periodic component of a series.
type SeasonalPattern struct {
	Metric     string           `json:"metric"`
	TenantID   string           `json:"tenant_id,omitempty"`
	PeriodType PeriodType       `json:"period_type"`
	Strength   float64          `json:"strength"`
	Peaks      []int            `json:"peaks"`
	Valleys    []int            `json:"valleys"`
	Buckets    []SeasonalBucket `json:"buckets"`
}
