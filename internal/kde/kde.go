// Package kde provides a gaussian kernel density estimate over a 1-D
// sample, used to locate intensity and value modes and the minima between
// them.
package kde

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// KDE is a smoothed, continuous density curve fit to a finite sample.
type KDE struct {
	data      []float64
	bandwidth float64
}

// New fits a KDE to the non-NaN elements of data using Scott's-rule
// bandwidth (n^(-1/5) times the sample standard deviation).
func New(data []float64) (*KDE, error) {
	clean := dropNaN(data)
	if len(clean) < 2 {
		return nil, fmt.Errorf("kde: need at least 2 samples, have %d", len(clean))
	}
	sd := stat.StdDev(clean, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, fmt.Errorf("kde: sample has zero spread")
	}
	bw := sd * math.Pow(float64(len(clean)), -0.2)
	return &KDE{data: clean, bandwidth: bw}, nil
}

// NewWithBandwidth fits a KDE with an explicit kernel bandwidth.
func NewWithBandwidth(data []float64, bandwidth float64) (*KDE, error) {
	clean := dropNaN(data)
	if len(clean) == 0 {
		return nil, fmt.Errorf("kde: no usable samples")
	}
	if bandwidth <= 0 {
		return nil, fmt.Errorf("kde: bandwidth must be positive, got %v", bandwidth)
	}
	return &KDE{data: clean, bandwidth: bandwidth}, nil
}

// Bandwidth returns the kernel width in data units.
func (k *KDE) Bandwidth() float64 { return k.bandwidth }

// N returns the number of samples backing the estimate.
func (k *KDE) N() int { return len(k.data) }

// PDF evaluates the density estimate at x.
func (k *KDE) PDF(x float64) float64 {
	kernel := distuv.Normal{Mu: 0, Sigma: k.bandwidth}
	var sum float64
	for _, v := range k.data {
		sum += kernel.Prob(x - v)
	}
	return sum / float64(len(k.data))
}

// Evaluate evaluates the density estimate on a grid.
func (k *KDE) Evaluate(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = k.PDF(x)
	}
	return out
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

// FindMins returns the x positions of the strict local minima of y.
func FindMins(x, y []float64) []float64 {
	var out []float64
	for i := 1; i < len(y)-1; i++ {
		if y[i] < y[i-1] && y[i] < y[i+1] {
			out = append(out, x[i])
		}
	}
	return out
}

// LocalMaxima returns the indices of the strict local maxima of y, in
// order.
func LocalMaxima(y []float64) []int {
	var out []int
	for i := 1; i < len(y)-1; i++ {
		if y[i] > y[i-1] && y[i] > y[i+1] {
			out = append(out, i)
		}
	}
	return out
}

func dropNaN(a []float64) []float64 {
	out := make([]float64, 0, len(a))
	for _, v := range a {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
