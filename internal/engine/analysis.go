package engine

import (
	"github.com/miradorstack/mirador-insights/internal/analyzers"
	"github.com/miradorstack/mirador-insights/internal/config"
)

// Analyzers bundles one generation of analyzer instances built from the analysis
// config. A reload swaps the whole bundle; runs in flight keep the one they started with.
type Analyzers struct {
	Trend       *analyzers.TrendAnalyzer
	Anomaly     *analyzers.AnomalyDetector
	Correlation *analyzers.CorrelationAnalyzer
	Seasonality *analyzers.SeasonalityDetector
	Capacity    *analyzers.CapacityPredictor
	Horizon     int
}

// NewAnalyzers builds analyzers from cfg. Unset values fall back to analyzer defaults.
func NewAnalyzers(cfg config.AnalysisConfig) *Analyzers {
	trend := analyzers.NewTrendAnalyzer(analyzers.TrendConfig{
		StableSlope:    cfg.StableSlope,
		ForecastWindow: cfg.ForecastWindow,
	})
	return &Analyzers{
		Trend: trend,
		Anomaly: analyzers.NewAnomalyDetector(analyzers.AnomalyConfig{
			Threshold: cfg.AnomalyThreshold,
			GapFactor: cfg.GapFactor,
		}),
		Correlation: analyzers.NewCorrelationAnalyzer(analyzers.CorrelationConfig{
			Threshold:   cfg.CorrelationThreshold,
			MaxLag:      cfg.MaxLag,
			MaxMetrics:  cfg.MaxMetrics,
			Granularity: cfg.GranularityDuration,
		}),
		Seasonality: analyzers.NewSeasonalityDetector(analyzers.SeasonalityConfig{
			MinStrength: cfg.SeasonalityStrength,
		}),
		Capacity: analyzers.NewCapacityPredictor(analyzers.CapacityConfig{
			Threshold:   cfg.CapacityThreshold,
			HorizonDays: cfg.HorizonDays,
		}, trend),
		Horizon: cfg.ForecastHorizon,
	}
}
