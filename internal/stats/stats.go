// Package stats holds the numeric primitives shared by every analyzer.
// Functions never allocate state and never fail; degenerate inputs are
// answered with neutral values.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the population variance.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Regression is the outcome of an ordinary least squares fit.
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// At evaluates the fitted line.
func (r Regression) At(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// LinearRegression fits y = intercept + slope*x. A constant y yields slope 0 and
// rSquared 1; a constant x yields slope 0 and rSquared 0.
func LinearRegression(x, y []float64) Regression {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return Regression{}
	}
	x, y = x[:n], y[:n]

	meanX := Mean(x)
	meanY := Mean(y)

	var sxx, sxy, sst float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		sst += dy * dy
	}

	if sst == 0 {
		return Regression{Slope: 0, Intercept: meanY, RSquared: 1}
	}
	if sxx == 0 {
		return Regression{Slope: 0, Intercept: meanY, RSquared: 0}
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var ssr float64
	for i := 0; i < n; i++ {
		d := y[i] - (intercept + slope*x[i])
		ssr += d * d
	}

	return Regression{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  1 - ssr/sst,
	}
}

// Pearson returns the linear correlation coefficient of two sequences, using the
// common prefix when lengths differ. Fewer than 2 points or zero variance yields 0.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0
	}
	x, y = x[:n], y[:n]

	meanX := Mean(x)
	meanY := Mean(y)

	var sxx, syy, sxy float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return Clamp(sxy/math.Sqrt(sxx*syy), -1, 1)
}

// Percentile returns the p-th percentile (0-100) of values without modifying them.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Median is Percentile(values, 50) interpolated between the two middle values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Clamp bounds value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
