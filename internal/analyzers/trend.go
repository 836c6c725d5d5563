package analyzers

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/stats"
)

const (
	minTrendSamples      = 3
	defaultStableSlope   = 0.01
	defaultForecastPoint = 10
	minPointConfidence   = 0.1
)

// TrendConfig tunes the trend analyzer.
type TrendConfig struct {
	// StableSlope is the |slope| at or below which a series is reported stable.
	StableSlope float64
	// ForecastWindow is the number of trailing samples the forecast is fitted on.
	ForecastWindow int
}

// TrendAnalyzer fits a regression over sample index (not wall clock) and
// extrapolates a short forecast.
type TrendAnalyzer struct {
	cfg TrendConfig
}

// NewTrendAnalyzer creates a trend analyzer, filling unset options with defaults.
func NewTrendAnalyzer(cfg TrendConfig) *TrendAnalyzer {
	if cfg.StableSlope <= 0 {
		cfg.StableSlope = defaultStableSlope
	}
	if cfg.ForecastWindow <= 0 {
		cfg.ForecastWindow = defaultForecastPoint
	}
	return &TrendAnalyzer{cfg: cfg}
}

// Analyze returns the trend of series and, when horizon > 0, a forecast of horizon steps.
// Series with fewer than three samples yield a stable result with zero confidence.
func (a *TrendAnalyzer) Analyze(series models.TimeSeries, horizon int) models.TrendResult {
	result := models.TrendResult{
		Metric:      series.Key.Name(),
		TenantID:    series.Key.TenantID,
		Window:      series.End.Sub(series.Start),
		Direction:   models.DirectionStable,
		SampleCount: series.Len(),
		Interval:    series.MedianInterval(),
	}
	if series.Len() < minTrendSamples {
		return result
	}

	values := series.Values()
	reg := stats.LinearRegression(indices(len(values)), values)

	result.Slope = reg.Slope
	result.ChangeRatePct = math.Abs(reg.Slope) * 100
	result.Direction = a.direction(reg.Slope)
	result.Confidence = stats.Clamp(reg.RSquared, 0, 1)

	if horizon > 0 {
		result.Forecast = a.forecast(series, horizon)
	}
	return result
}

func (a *TrendAnalyzer) direction(slope float64) models.Direction {
	switch {
	case math.Abs(slope) <= a.cfg.StableSlope:
		return models.DirectionStable
	case slope > 0:
		return models.DirectionIncreasing
	default:
		return models.DirectionDecreasing
	}
}

func (a *TrendAnalyzer) forecast(series models.TimeSeries, horizon int) []models.ForecastPoint {
	recent := series.Tail(a.cfg.ForecastWindow)
	values := recent.Values()
	reg := stats.LinearRegression(indices(len(values)), values)

	recentAvg := stats.Mean(values)
	spread := math.Sqrt(stats.Variance(values))
	confidence := stats.Clamp(reg.RSquared, 0, 1)

	step := series.MedianInterval()
	if step <= 0 {
		step = time.Minute
	}
	last, _ := series.Last()
	origin := float64(len(values) - 1)

	points := make([]models.ForecastPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		line := reg.At(origin + float64(h))
		predicted := line
		if recentAvg != 0 {
			predicted = recentAvg * (1 + trendAdjustment(line, recentAvg)/100)
		}
		halfWidth := spread * (1 + 0.1*float64(h))

		points = append(points, models.ForecastPoint{
			Timestamp:  last.Timestamp.Add(time.Duration(h) * step),
			Step:       h,
			Predicted:  predicted,
			Lower:      predicted - halfWidth,
			Upper:      predicted + halfWidth,
			Confidence: math.Max(confidence*(1-0.02*float64(h)), minPointConfidence),
		})
	}
	return points
}

// trendAdjustment is the percentage offset of the fitted line from the recent average.
func trendAdjustment(line, recentAvg float64) float64 {
	return (line - recentAvg) / recentAvg * 100
}
