package analyzers

import (
	"time"

	"github.com/miradorstack/mirador-insights/internal/models"
)

var testEpoch = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// buildSeries lays values out at a fixed step starting at testEpoch. End is one step
// past the last sample so the window has no silent tail.
func buildSeries(metric string, step time.Duration, values []float64) models.TimeSeries {
	samples := make([]models.Sample, len(values))
	for i, v := range values {
		samples[i] = models.Sample{Timestamp: testEpoch.Add(time.Duration(i) * step), Value: v}
	}
	end := testEpoch.Add(time.Duration(len(values)) * step)
	return models.NewTimeSeries(models.SeriesKey{Metric: metric, TenantID: "tenant-a"}, testEpoch, end, samples)
}

// alternating returns n values oscillating between mean-1 and mean+1.
func alternating(n int, mean float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		if i%2 == 0 {
			values[i] = mean - 1
		} else {
			values[i] = mean + 1
		}
	}
	return values
}

func linear(n int, start, step float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + step*float64(i)
	}
	return values
}
