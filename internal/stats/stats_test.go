package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanVarianceStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(values), 1e-12)
	assert.InDelta(t, 4.0, Variance(values), 1e-12)
	assert.InDelta(t, 2.0, StdDev(values), 1e-12)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Variance(nil))
}

func TestLinearRegressionPerfectLine(t *testing.T) {
	x := make([]float64, 50)
	y := make([]float64, 50)
	for i := range x {
		x[i] = float64(i)
		y[i] = float64(i + 1)
	}

	reg := LinearRegression(x, y)
	assert.InDelta(t, 1.0, reg.Slope, 1e-9)
	assert.InDelta(t, 1.0, reg.Intercept, 1e-9)
	assert.InDelta(t, 1.0, reg.RSquared, 1e-9)
	assert.InDelta(t, 51.0, reg.At(50), 1e-9)
}

func TestLinearRegressionConstantSeries(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{5, 5, 5, 5, 5}

	reg := LinearRegression(x, y)
	assert.Equal(t, 0.0, reg.Slope)
	assert.Equal(t, 1.0, reg.RSquared)
	assert.Equal(t, 5.0, reg.Intercept)
}

func TestLinearRegressionConstantX(t *testing.T) {
	reg := LinearRegression([]float64{3, 3, 3}, []float64{1, 2, 3})
	assert.Equal(t, 0.0, reg.Slope)
	assert.Equal(t, 0.0, reg.RSquared)
	assert.False(t, math.IsNaN(reg.Intercept))
}

func TestPearsonIdentityAndInverse(t *testing.T) {
	x := []float64{1, 3, 2, 8, 5, 13, 21, 4}
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}

	assert.InDelta(t, 1.0, Pearson(x, x), 1e-12)
	assert.InDelta(t, -1.0, Pearson(x, neg), 1e-12)
}

func TestPearsonDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, Pearson([]float64{1}, []float64{2}))
	assert.Equal(t, 0.0, Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, Pearson(nil, nil))
}

func TestPercentileAndMedian(t *testing.T) {
	values := []float64{50, 10, 40, 20, 30}
	require.Equal(t, 10.0, Percentile(values, 0))
	require.Equal(t, 50.0, Percentile(values, 100))
	assert.Equal(t, 40.0, Percentile(values, 95))
	assert.Equal(t, 30.0, Median(values))
	assert.Equal(t, 25.0, Median([]float64{10, 20, 30, 40}))

	// input must stay untouched
	assert.Equal(t, []float64{50, 10, 40, 20, 30}, values)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-2, 0, 1))
	assert.Equal(t, 1.0, Clamp(3, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}
