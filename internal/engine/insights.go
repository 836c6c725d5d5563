package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-insights/internal/analyzers"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

// impact = confidence × magnitude × severity weight, each factor in [0,1].
func impact(confidence, magnitude float64, severity models.Severity) float64 {
	return stats.Clamp(confidence, 0, 1) * stats.Clamp(magnitude, 0, 1) * severity.Weight()
}

func trendSeverity(changeRatePct float64) models.Severity {
	pct := math.Abs(changeRatePct)
	switch {
	case pct >= 200:
		return models.SeverityCritical
	case pct >= 100:
		return models.SeverityHigh
	case pct >= 50:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// trendInsight reports a non-stable trend. Stable or unfitted series yield nothing.
func trendInsight(trend models.TrendResult, now time.Time) (models.Insight, bool) {
	if trend.Direction == models.DirectionStable || trend.Confidence <= 0 {
		return models.Insight{}, false
	}
	severity := trendSeverity(trend.ChangeRatePct)
	summary := fmt.Sprintf("%s changed %+.1f%% over %s (R²=%.2f)", trend.Metric, trend.ChangeRatePct, trend.Window, trend.Confidence)
	var recs []string
	if trend.Direction == models.DirectionIncreasing && severity.Rank() >= models.SeverityHigh.Rank() {
		recs = append(recs, fmt.Sprintf("Investigate the sustained growth of %s", trend.Metric))
	}
	return models.NewInsight(models.InsightDraft{
		Kind:            models.InsightTrend,
		Metric:          trend.Metric,
		TenantID:        trend.TenantID,
		Title:           fmt.Sprintf("%s is %s", trend.Metric, trend.Direction),
		Summary:         summary,
		Severity:        severity,
		Impact:          impact(trend.Confidence, math.Abs(trend.ChangeRatePct)/100, severity),
		Confidence:      trend.Confidence,
		Recommendations: recs,
		Trend:           &trend,
	}, now), true
}

// anomalyInsight converts one anomaly. Confidence grows with how far the score
// exceeds the threshold; magnitude saturates at ten standard deviations.
func anomalyInsight(a models.AnomalyResult, threshold float64, now time.Time) models.Insight {
	confidence := 1.0
	if threshold > 0 {
		confidence = stats.Clamp(a.DeviationScore/(2*threshold), 0, 1)
	}
	var summary string
	switch a.Type {
	case models.AnomalyMissing:
		summary = fmt.Sprintf("%s reported no data for %.1f expected intervals", a.Metric, a.DeviationScore)
	case models.AnomalyDrift:
		summary = fmt.Sprintf("%s shifted to %.2f from a baseline of %.2f", a.Metric, a.Value, a.ExpectedValue)
	default:
		summary = fmt.Sprintf("%s was %.2f against an expected %.2f (score %.1f)", a.Metric, a.Value, a.ExpectedValue, a.DeviationScore)
	}
	return models.NewInsight(models.InsightDraft{
		Kind:       models.InsightAnomaly,
		Metric:     a.Metric,
		TenantID:   a.TenantID,
		Title:      fmt.Sprintf("%s %s at %s", a.Metric, a.Type, a.Timestamp.UTC().Format(time.RFC3339)),
		Summary:    summary,
		Severity:   a.Severity,
		Impact:     impact(confidence, a.DeviationScore/10, a.Severity),
		Confidence: confidence,
		Anomaly:    &a,
	}, now)
}

func prioritySeverity(priority string) models.Severity {
	switch priority {
	case analyzers.PriorityUrgent:
		return models.SeverityCritical
	case analyzers.PriorityHigh:
		return models.SeverityHigh
	case analyzers.PriorityMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// capacityInsight reports a component that is not merely being monitored.
func capacityInsight(result models.CapacityResult, threshold float64, extra []string, now time.Time) (models.Insight, bool) {
	if len(result.Recommendations) == 0 {
		return models.Insight{}, false
	}
	top := result.Recommendations[0]
	if top.Priority == analyzers.PriorityLow {
		return models.Insight{}, false
	}
	severity := prioritySeverity(top.Priority)
	magnitude := 1.0
	if threshold > 0 {
		magnitude = result.PredictedUtilization / threshold
	}

	recs := make([]string, 0, len(result.Recommendations)+len(extra))
	for _, r := range result.Recommendations {
		recs = append(recs, r.Description)
	}
	recs = appendUnique(recs, extra...)

	title := fmt.Sprintf("%s reaches capacity in %s", result.Component, result.TimeToCapacity)
	if result.TimeToCapacity == analyzers.TimeToCapacityNow {
		title = fmt.Sprintf("%s is at capacity", result.Component)
	} else if !result.HasCrossing {
		title = fmt.Sprintf("%s utilization is growing", result.Component)
	}
	return models.NewInsight(models.InsightDraft{
		Kind:     models.InsightCapacity,
		Metric:   result.Component,
		TenantID: result.TenantID,
		Title:    title,
		Summary: fmt.Sprintf("%s at %.1f%%, projected %.1f%% (%+.2f/day)",
			result.Component, result.CurrentUtilization, result.PredictedUtilization, result.GrowthPerDay),
		Severity:        severity,
		Impact:          impact(result.Confidence, magnitude, severity),
		Confidence:      result.Confidence,
		Recommendations: recs,
		Capacity:        &result,
	}, now), true
}

// correlationInsight summarises the partners of one primary metric. The strongest
// coefficient serves as both confidence and magnitude.
func correlationInsight(result models.CorrelationResult, now time.Time) (models.Insight, bool) {
	if len(result.CorrelatedMetrics) == 0 {
		return models.Insight{}, false
	}
	strongest := result.CorrelatedMetrics[0]
	r := math.Abs(strongest.Coefficient)
	severity := models.SeverityLow
	if r >= 0.9 {
		severity = models.SeverityMedium
	}
	relation := "moves with"
	if strongest.Coefficient < 0 {
		relation = "moves against"
	}
	summary := fmt.Sprintf("%s %s %s (r=%.2f", result.PrimaryMetric, relation, strongest.Metric, strongest.Coefficient)
	if strongest.Lag != 0 {
		summary += fmt.Sprintf(", lag %s", strongest.LagDuration)
	}
	summary += fmt.Sprintf("); %d correlated metric(s)", len(result.CorrelatedMetrics))

	return models.NewInsight(models.InsightDraft{
		Kind:        models.InsightCorrelation,
		Metric:      result.PrimaryMetric,
		TenantID:    result.TenantID,
		Title:       fmt.Sprintf("%s correlates with %s", result.PrimaryMetric, strongest.Metric),
		Summary:     summary,
		Severity:    severity,
		Impact:      impact(r, r, severity),
		Confidence:  r,
		Correlation: &result,
	}, now), true
}

// seasonalityInsight reports a retained cycle. Magnitude is the peak-to-valley swing
// relative to the overall level.
func seasonalityInsight(pattern models.SeasonalPattern, now time.Time) models.Insight {
	hi, lo := math.Inf(-1), math.Inf(1)
	var total float64
	var populated int
	for _, b := range pattern.Buckets {
		if b.Count == 0 {
			continue
		}
		hi = math.Max(hi, b.Mean)
		lo = math.Min(lo, b.Mean)
		total += b.Mean
		populated++
	}
	magnitude := 0.0
	if populated > 0 {
		level := math.Abs(total / float64(populated))
		if level > 0 {
			magnitude = (hi - lo) / level
		} else if hi > lo {
			magnitude = 1
		}
	}
	return models.NewInsight(models.InsightDraft{
		Kind:     models.InsightSeasonality,
		Metric:   pattern.Metric,
		TenantID: pattern.TenantID,
		Title:    fmt.Sprintf("%s follows a %s cycle", pattern.Metric, pattern.PeriodType),
		Summary: fmt.Sprintf("%s cycle explains %.0f%% of the variance; peaks at slot %v, valleys at slot %v",
			pattern.PeriodType, pattern.Strength*100, pattern.Peaks, pattern.Valleys),
		Severity:    models.SeverityLow,
		Impact:      impact(pattern.Strength, magnitude, models.SeverityLow),
		Confidence:  pattern.Strength,
		Seasonality: &pattern,
	}, now)
}

// Rank orders insights by impact, highest first, breaking ties by kind then metric,
// and keeps at most topN. The input slice is reordered in place.
func Rank(insights []models.Insight, topN int) []models.Insight {
	sort.SliceStable(insights, func(i, j int) bool {
		a, b := insights[i], insights[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Metric < b.Metric
	})
	if topN > 0 && len(insights) > topN {
		insights = insights[:topN]
	}
	return insights
}
