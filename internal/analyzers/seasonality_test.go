package analyzers

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-insights/internal/models"
)

func dailySine(days int) []float64 {
	values := make([]float64, days*24)
	for i := range values {
		values[i] = 50 + 10*math.Sin(2*math.Pi*float64(i%24)/24)
	}
	return values
}

func TestSeasonalityDetectsDailyCycle(t *testing.T) {
	series := buildSeries("active_sessions", time.Hour, dailySine(3))
	patterns := NewSeasonalityDetector(SeasonalityConfig{}).Detect(series)

	require.Len(t, patterns, 1)
	daily := patterns[0]
	assert.Equal(t, models.PeriodDaily, daily.PeriodType)
	assert.InDelta(t, 1.0, daily.Strength, 1e-9)
	assert.Equal(t, []int{6}, daily.Peaks)
	assert.Equal(t, []int{18}, daily.Valleys)
	assert.Len(t, daily.Buckets, 24)
	assert.Equal(t, "active_sessions", daily.Metric)
}

func TestSeasonalityPredict(t *testing.T) {
	series := buildSeries("active_sessions", time.Hour, dailySine(3))
	pattern, ok := NewSeasonalityDetector(SeasonalityConfig{}).DetectPeriod(series, models.PeriodDaily)
	require.True(t, ok)

	future := testEpoch.Add(10*24*time.Hour + 6*time.Hour + 20*time.Minute)
	predicted, lower, upper, ok := Predict(pattern, future)
	require.True(t, ok)
	assert.InDelta(t, 60.0, predicted, 1e-9)
	assert.InDelta(t, predicted, lower, 1e-9)
	assert.InDelta(t, predicted, upper, 1e-9)

	_, _, _, ok = Predict(models.SeasonalPattern{PeriodType: models.PeriodDaily}, future)
	assert.False(t, ok)
}

func TestSeasonalityPredictRangeUsesBucketSpread(t *testing.T) {
	values := dailySine(4)
	for i := range values {
		if (i/24)%2 == 1 {
			values[i] += 2
		}
	}
	pattern, ok := NewSeasonalityDetector(SeasonalityConfig{}).DetectPeriod(buildSeries("sessions", time.Hour, values), models.PeriodDaily)
	require.True(t, ok)

	predicted, lower, upper, ok := Predict(pattern, testEpoch.Add(6*time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 61.0, predicted, 1e-9)
	assert.InDelta(t, 60.0, lower, 1e-9)
	assert.InDelta(t, 62.0, upper, 1e-9)
}

func TestSeasonalityIgnoresNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	values := make([]float64, 14*24)
	for i := range values {
		values[i] = rng.Float64() * 100
	}
	patterns := NewSeasonalityDetector(SeasonalityConfig{}).Detect(buildSeries("noise", time.Hour, values))
	assert.Empty(t, patterns)
}

func TestSeasonalityNeedsTwoPeriods(t *testing.T) {
	series := buildSeries("active_sessions", time.Hour, dailySine(1))
	_, ok := NewSeasonalityDetector(SeasonalityConfig{}).DetectPeriod(series, models.PeriodDaily)
	assert.False(t, ok)
}

func TestSeasonalityHourlySlots(t *testing.T) {
	// Three hours of five-minute samples peaking in the second slot of each hour.
	values := make([]float64, 36)
	for i := range values {
		values[i] = 10
		if i%12 == 1 {
			values[i] = 40
		}
	}
	pattern, ok := NewSeasonalityDetector(SeasonalityConfig{}).DetectPeriod(buildSeries("jobs", 5*time.Minute, values), models.PeriodHourly)
	require.True(t, ok)
	assert.Equal(t, []int{1}, pattern.Peaks)
	assert.Len(t, pattern.Valleys, 11)
	assert.InDelta(t, 1.0, pattern.Strength, 1e-9)
}

func TestSeasonalityStrengthBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	values := dailySine(7)
	for i := range values {
		values[i] += rng.NormFloat64() * 3
	}
	pattern, _ := NewSeasonalityDetector(SeasonalityConfig{}).DetectPeriod(buildSeries("mixed", time.Hour, values), models.PeriodDaily)
	assert.GreaterOrEqual(t, pattern.Strength, 0.0)
	assert.LessOrEqual(t, pattern.Strength, 1.0)
	assert.Greater(t, pattern.Strength, 0.3)
}
