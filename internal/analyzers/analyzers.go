// Package analyzers turns fetched time series into trends, anomalies,
// correlations, seasonal patterns and capacity projections. Every analyzer is
// synchronous, holds only immutable configuration and never mutates its input,
// so a single instance may be shared by concurrent workers.
package analyzers

import (
	"math"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// SeverityForScore maps a deviation score onto a severity. The mapping is the same
// for every anomaly type so severity stays monotone in the score.
func SeverityForScore(score float64) models.Severity {
	switch {
	case score > 4.0:
		return models.SeverityCritical
	case score > 3.0:
		return models.SeverityHigh
	case score > 2.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func indices(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

// negligible reports whether a spread is too small to score against.
func negligible(stddev, mean float64) bool {
	return stddev <= 1e-9*math.Max(1, math.Abs(mean))
}
