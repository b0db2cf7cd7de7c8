package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaussian_RecoversKnownPeak(t *testing.T) {
	want := GaussianCoeffs{A: 5, Mu: 2, Sigma: 0.8}
	var x, y []float64
	for v := -2.0; v <= 6.0; v += 0.25 {
		x = append(x, v)
		y = append(y, GaussianValue(v, want))
	}

	got, err := Gaussian(x, y, GaussianCoeffs{A: 4, Mu: 1.5, Sigma: 1})
	require.NoError(t, err)
	assert.InDelta(t, want.A, got.A, 0.05)
	assert.InDelta(t, want.Mu, got.Mu, 0.05)
	assert.InDelta(t, want.Sigma, got.Sigma, 0.05)
}

func TestGaussian_RejectsShortInput(t *testing.T) {
	_, err := Gaussian([]float64{1, 2, 3}, []float64{1, 2, 3}, GaussianCoeffs{A: 1, Mu: 2, Sigma: 1})
	assert.Error(t, err, "too few samples")

	_, err = Gaussian([]float64{1, 2}, []float64{1}, GaussianCoeffs{})
	assert.Error(t, err, "mismatched lengths")
}

func TestGaussianInverse(t *testing.T) {
	c := GaussianCoeffs{A: 1, Mu: 3, Sigma: 1.5}
	lo, hi := GaussianInverse(0.01, c.Mu, c.Sigma)

	require.Less(t, lo, hi)
	// The unit-height gaussian evaluated at either position equals y.
	for _, x := range []float64{lo, hi} {
		d := x - c.Mu
		got := math.Exp(-0.5 * d * d / (c.Sigma * c.Sigma))
		assert.InDelta(t, 0.01, got, 1e-9)
	}
}

func TestExpDecay_RecoversExponent(t *testing.T) {
	const k = -0.7
	var ts, ys []float64
	for v := 0.0; v <= 10; v += 0.2 {
		ts = append(ts, v)
		ys = append(ys, math.Exp(k*v))
	}

	got, sigma, err := ExpDecay(ts, ys)
	require.NoError(t, err)
	assert.InDelta(t, k, got, 0.01)
	assert.GreaterOrEqual(t, sigma, 0.0)
	assert.False(t, math.IsNaN(sigma))
}

func TestRSquared(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, RSquared(y, y), "perfect fit")
	assert.Equal(t, 0.0, RSquared(y, []float64{2.5, 2.5, 2.5, 2.5}), "mean-only fit")
	assert.True(t, math.IsNaN(RSquared(nil, nil)), "empty input")
}
