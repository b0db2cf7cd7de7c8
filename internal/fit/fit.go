// Package fit provides the small set of least-squares curve fits used by
// segmentation: a three-parameter gaussian for transition peaks and a
// one-parameter exponential for washout decay.
package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// GaussianCoeffs are the parameters of A*exp(-(x-mu)^2 / (2*sigma^2)).
type GaussianCoeffs struct {
	A     float64
	Mu    float64
	Sigma float64
}

// GaussianValue evaluates the gaussian described by c at x.
func GaussianValue(x float64, c GaussianCoeffs) float64 {
	d := x - c.Mu
	return c.A * math.Exp(-0.5*d*d/(c.Sigma*c.Sigma))
}

// Gaussian fits a gaussian to (x, y) by least squares starting from p0.
// Fit failures are recoverable conditions: callers are expected to warn and
// continue without the affected transition.
func Gaussian(x, y []float64, p0 GaussianCoeffs) (GaussianCoeffs, error) {
	if len(x) != len(y) {
		return GaussianCoeffs{}, fmt.Errorf("fit: x has %d samples, y has %d", len(x), len(y))
	}
	if len(x) < 4 {
		return GaussianCoeffs{}, fmt.Errorf("fit: %d samples, need at least 4 for a gaussian", len(x))
	}

	sse := func(p []float64) float64 {
		a, mu, sigma := p[0], p[1], p[2]
		if sigma == 0 {
			return math.Inf(1)
		}
		var sum float64
		for i := range x {
			d := x[i] - mu
			r := y[i] - a*math.Exp(-0.5*d*d/(sigma*sigma))
			sum += r * r
		}
		return sum
	}

	problem := optimize.Problem{Func: sse}
	res, err := optimize.Minimize(problem, []float64{p0.A, p0.Mu, p0.Sigma}, nil, &optimize.NelderMead{})
	if err != nil {
		return GaussianCoeffs{}, fmt.Errorf("fit: gaussian minimisation: %w", err)
	}
	c := GaussianCoeffs{A: res.X[0], Mu: res.X[1], Sigma: math.Abs(res.X[2])}
	if !isFinite(res.F) || !isFinite(c.A) || !isFinite(c.Mu) || !isFinite(c.Sigma) || c.Sigma == 0 {
		return GaussianCoeffs{}, fmt.Errorf("fit: gaussian fit did not converge")
	}
	return c, nil
}

// GaussianInverse returns the two x positions either side of mu where a
// unit-height gaussian of width sigma equals y. y must lie in (0, 1).
func GaussianInverse(y, mu, sigma float64) (lo, hi float64) {
	w := math.Sqrt2 * math.Sqrt(sigma*sigma*math.Log(1/y))
	return mu - w, mu + w
}

// ExpDecay fits y = exp(k*t) to the pooled washout data and returns the
// decay exponent with its standard error.
func ExpDecay(t, y []float64) (k, sigmaK float64, err error) {
	if len(t) != len(y) {
		return 0, 0, fmt.Errorf("fit: t has %d samples, y has %d", len(t), len(y))
	}
	if len(t) < 3 {
		return 0, 0, fmt.Errorf("fit: %d samples, need at least 3 for a decay fit", len(t))
	}

	sse := func(p []float64) float64 {
		var sum float64
		for i := range t {
			r := y[i] - math.Exp(p[0]*t[i])
			sum += r * r
		}
		return sum
	}

	problem := optimize.Problem{Func: sse}
	res, err := optimize.Minimize(problem, []float64{-1}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, fmt.Errorf("fit: decay minimisation: %w", err)
	}
	k = res.X[0]
	if !isFinite(k) || !isFinite(res.F) {
		return 0, 0, fmt.Errorf("fit: decay fit did not converge")
	}

	// Standard error from the linearised Jacobian J_i = t_i * exp(k*t_i).
	var jtj float64
	for i := range t {
		j := t[i] * math.Exp(k*t[i])
		jtj += j * j
	}
	if jtj == 0 {
		return 0, 0, fmt.Errorf("fit: decay fit is degenerate")
	}
	s2 := res.F / float64(len(t)-1)
	sigmaK = math.Sqrt(s2 / jtj)
	return k, sigmaK, nil
}

// ExpValue evaluates exp(k*t).
func ExpValue(t, k float64) float64 { return math.Exp(k * t) }

// RSquared is the coefficient of determination of predictions yp against
// observations y.
func RSquared(y, yp []float64) float64 {
	if len(y) == 0 || len(y) != len(yp) {
		return math.NaN()
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssTot, ssFit float64
	for i := range y {
		d := y[i] - mean
		ssTot += d * d
		r := y[i] - yp[i]
		ssFit += r * r
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssFit/ssTot
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
