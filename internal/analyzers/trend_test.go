package analyzers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func TestTrendMonotonicSeries(t *testing.T) {
	analyzer := NewTrendAnalyzer(TrendConfig{})
	result := analyzer.Analyze(buildSeries("requests", time.Minute, linear(50, 1, 1)), 0)

	assert.Equal(t, models.DirectionIncreasing, result.Direction)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.InDelta(t, 100.0, result.ChangeRatePct, 1e-9)
	assert.Equal(t, 50, result.SampleCount)
	assert.Equal(t, time.Minute, result.Interval)
	assert.Empty(t, result.Forecast)
}

func TestTrendLinearScenarioForecast(t *testing.T) {
	analyzer := NewTrendAnalyzer(TrendConfig{})
	series := buildSeries("latency", time.Minute, linear(10, 10, 2))
	result := analyzer.Analyze(series, 5)

	assert.Equal(t, models.DirectionIncreasing, result.Direction)
	assert.InDelta(t, 200.0, result.ChangeRatePct, 1e-9)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)

	require.Len(t, result.Forecast, 5)
	first := result.Forecast[0]
	// The fitted line continues 28 by one slope step.
	assert.InDelta(t, 30.0, first.Predicted, 1e-9)
	assert.Equal(t, 1, first.Step)
	assert.True(t, first.Timestamp.Equal(series.Samples[9].Timestamp.Add(time.Minute)))
	assert.InDelta(t, 0.98, first.Confidence, 1e-9)
	assert.InDelta(t, 38.0, result.Forecast[4].Predicted, 1e-9)
}

func TestTrendDecreasing(t *testing.T) {
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("free_mem", time.Minute, linear(20, 100, -3)), 0)
	assert.Equal(t, models.DirectionDecreasing, result.Direction)
	assert.InDelta(t, -3.0, result.Slope, 1e-9)
	assert.InDelta(t, 300.0, result.ChangeRatePct, 1e-9)
}

func TestTrendConstantSeries(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 5
	}
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("flat", time.Minute, values), 3)

	assert.Equal(t, models.DirectionStable, result.Direction)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 0.0, result.ChangeRatePct)
	require.Len(t, result.Forecast, 3)
	for _, p := range result.Forecast {
		assert.InDelta(t, 5.0, p.Predicted, 1e-9)
		assert.Equal(t, p.Lower, p.Upper)
	}
}

func TestTrendSmallSlopeIsStable(t *testing.T) {
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("slow", time.Minute, linear(30, 10, 0.005)), 0)
	assert.Equal(t, models.DirectionStable, result.Direction)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestTrendInsufficientData(t *testing.T) {
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("short", time.Minute, []float64{1, 9}), 10)

	assert.Equal(t, models.DirectionStable, result.Direction)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, 2, result.SampleCount)
	assert.Nil(t, result.Forecast)
}

func TestForecastBandsAndConfidenceDecay(t *testing.T) {
	values := []float64{10, 14, 11, 17, 15, 19, 18, 24, 21, 26, 25, 30}
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("noisy", 5*time.Minute, values), 60)

	require.Len(t, result.Forecast, 60)
	prev := 1.0
	prevWidth := 0.0
	for _, p := range result.Forecast {
		assert.LessOrEqual(t, p.Lower, p.Predicted)
		assert.LessOrEqual(t, p.Predicted, p.Upper)
		assert.LessOrEqual(t, p.Confidence, prev, "confidence must not grow with the horizon")
		assert.GreaterOrEqual(t, p.Confidence, 0.1)
		assert.Greater(t, p.Upper-p.Lower, prevWidth)
		prev = p.Confidence
		prevWidth = p.Upper - p.Lower
	}
	assert.Equal(t, 0.1, result.Forecast[59].Confidence)
}

func TestForecastAroundZeroUsesLine(t *testing.T) {
	// Window mean is zero, so the forecast falls back to the raw line value.
	values := []float64{-4.5, -3.5, -2.5, -1.5, -0.5, 0.5, 1.5, 2.5, 3.5, 4.5}
	result := NewTrendAnalyzer(TrendConfig{}).Analyze(buildSeries("offset", time.Minute, values), 1)

	require.Len(t, result.Forecast, 1)
	assert.InDelta(t, 5.5, result.Forecast[0].Predicted, 1e-9)
}
