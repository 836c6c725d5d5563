package analyzers

import (
	"fmt"
	"math"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

const (
	defaultCapacityThreshold = 90.0
	defaultHorizonDays       = 30
	defaultUrgentDays        = 14
	defaultHighDays          = 30

	// TimeToCapacityUnknown is reported when utilization is flat or falling.
	TimeToCapacityUnknown = "unknown"
	// TimeToCapacityNow is reported when utilization already reached the threshold.
	TimeToCapacityNow = "now"
)

// Recommendation actions emitted by the capacity predictor.
const (
	ActionScaleUp  = "scale_up"
	ActionScaleOut = "scale_out"
	ActionOptimize = "optimize"
	ActionMonitor  = "monitor"
)

// Recommendation priorities.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// CapacityConfig tunes the capacity predictor. Utilization is expressed in percent.
type CapacityConfig struct {
	Threshold   float64
	HorizonDays int
	UrgentDays  int
	HighDays    int
}

// CapacityPredictor projects component utilization towards a saturation threshold.
type CapacityPredictor struct {
	cfg   CapacityConfig
	trend *TrendAnalyzer
}

// NewCapacityPredictor wires a predictor on top of the given trend analyzer.
func NewCapacityPredictor(cfg CapacityConfig, trend *TrendAnalyzer) *CapacityPredictor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultCapacityThreshold
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = defaultHorizonDays
	}
	if cfg.UrgentDays <= 0 {
		cfg.UrgentDays = defaultUrgentDays
	}
	if cfg.HighDays <= cfg.UrgentDays {
		cfg.HighDays = max(defaultHighDays, cfg.UrgentDays+1)
	}
	if trend == nil {
		trend = NewTrendAnalyzer(TrendConfig{})
	}
	return &CapacityPredictor{cfg: cfg, trend: trend}
}

// Threshold returns the effective saturation threshold.
func (p *CapacityPredictor) Threshold() float64 { return p.cfg.Threshold }

// Predict combines the trends of a component's utilization metrics. Current
// utilization is the highest latest value; daily growth is the confidence-weighted
// mean of each metric's slope scaled to samples per day.
func (p *CapacityPredictor) Predict(component string, series []models.TimeSeries) models.CapacityResult {
	result := models.CapacityResult{
		Component:      component,
		TimeToCapacity: TimeToCapacityUnknown,
	}

	var (
		current     = math.Inf(-1)
		weighted    float64
		weights     float64
		plain       float64
		confidences []float64
		increasing  bool
	)
	for _, s := range series {
		last, ok := s.Last()
		if !ok {
			continue
		}
		if result.TenantID == "" {
			result.TenantID = s.Key.TenantID
		}
		current = math.Max(current, last.Value)

		trend := p.trend.Analyze(s, 0)
		if trend.SampleCount < minTrendSamples {
			continue
		}
		if trend.Direction == models.DirectionIncreasing {
			increasing = true
		}
		growth := trend.Slope * samplesPerDay(s)
		weighted += growth * trend.Confidence
		weights += trend.Confidence
		plain += growth
		confidences = append(confidences, trend.Confidence)
	}
	if math.IsInf(current, -1) {
		result.Recommendations = p.recommend(result, false)
		return result
	}

	var growth float64
	switch {
	case weights > 0:
		growth = weighted / weights
	case len(confidences) > 0:
		growth = plain / float64(len(confidences))
	}

	result.CurrentUtilization = current
	result.GrowthPerDay = growth
	result.Confidence = stats.Clamp(stats.Mean(confidences), 0, 1)
	result.PredictedUtilization = stats.Clamp(current+growth*float64(p.cfg.HorizonDays), 0, 100)

	// Saturation wins over direction: a component already over the threshold is
	// reported as "now" even while its utilization falls. Otherwise a crossing needs
	// at least one metric the trend analyzer classifies as increasing.
	switch {
	case current >= p.cfg.Threshold:
		result.TimeToCapacity = TimeToCapacityNow
		result.HasCrossing = true
	case growth > 0 && increasing:
		result.DaysToCapacity = (p.cfg.Threshold - current) / growth
		result.TimeToCapacity = HumanizeDays(result.DaysToCapacity)
		result.HasCrossing = true
	}
	result.Recommendations = p.recommend(result, increasing)
	return result
}

func (p *CapacityPredictor) recommend(result models.CapacityResult, increasing bool) []models.Recommendation {
	at := fmt.Sprintf("%.1f%%", result.CurrentUtilization)
	switch {
	case result.TimeToCapacity == TimeToCapacityNow:
		return []models.Recommendation{{
			Priority:    PriorityUrgent,
			Action:      ActionScaleUp,
			Description: fmt.Sprintf("%s is at %s, above the %.0f%% capacity threshold; add capacity immediately", result.Component, at, p.cfg.Threshold),
		}}
	case result.HasCrossing && result.DaysToCapacity < float64(p.cfg.UrgentDays):
		return []models.Recommendation{{
			Priority:    PriorityUrgent,
			Action:      ActionScaleUp,
			Description: fmt.Sprintf("%s reaches capacity in %s; scale up now", result.Component, result.TimeToCapacity),
		}}
	case result.HasCrossing && result.DaysToCapacity < float64(p.cfg.HighDays):
		return []models.Recommendation{{
			Priority:    PriorityHigh,
			Action:      ActionScaleOut,
			Description: fmt.Sprintf("%s reaches capacity in %s; plan horizontal scale-out", result.Component, result.TimeToCapacity),
		}}
	case increasing && result.GrowthPerDay > 0:
		return []models.Recommendation{{
			Priority:    PriorityMedium,
			Action:      ActionOptimize,
			Description: fmt.Sprintf("%s utilization is growing %.2f points per day from %s; review efficiency", result.Component, result.GrowthPerDay, at),
		}}
	default:
		return []models.Recommendation{{
			Priority:    PriorityLow,
			Action:      ActionMonitor,
			Description: fmt.Sprintf("%s utilization is stable or falling; keep monitoring", result.Component),
		}}
	}
}

// HumanizeDays renders a positive duration in days as a coarse bucket.
func HumanizeDays(days float64) string {
	switch {
	case days < 1:
		return "less than a day"
	case days < 14:
		n := int(math.Round(days))
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	case days < 60:
		return fmt.Sprintf("%d weeks", int(math.Round(days/7)))
	default:
		return fmt.Sprintf("%d months", int(math.Round(days/30)))
	}
}

func samplesPerDay(series models.TimeSeries) float64 {
	interval := series.MedianInterval()
	if interval <= 0 {
		return 0
	}
	return float64(24*time.Hour) / float64(interval)
}
