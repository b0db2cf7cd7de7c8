// Package rollstat computes rolling-window aggregate statistics over 1-D
// traces. Gaps (NaN samples) are treated as missing rather than corrupting
// neighbouring windows. Even window widths are decremented to the nearest
// odd width so every window has a well-defined centre.
package rollstat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// OddWindow decrements even widths to the nearest odd width, with a floor
// of 1.
func OddWindow(w int) int {
	if w%2 == 0 {
		w--
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Smooth returns the zero-padded rolling nan-mean of a. Positions closer
// to either boundary than half the window receive zero.
func Smooth(a []float64, w int) []float64 {
	w = OddWindow(w)
	h := w / 2
	out := make([]float64, len(a))
	for i := h; i < len(a)-h; i++ {
		out[i] = NanMean(a[i-h : i+h+1])
	}
	return out
}

// MeanPadNaN returns the rolling nan-mean of a with NaN at positions where
// the window extends past a boundary. Used by the despiker, which must not
// invent values at the trace edges.
func MeanPadNaN(a []float64, w int) []float64 {
	w = OddWindow(w)
	h := w / 2
	out := make([]float64, len(a))
	for i := range out {
		if i < h || i >= len(a)-h {
			out[i] = math.NaN()
			continue
		}
		out[i] = NanMean(a[i-h : i+h+1])
	}
	return out
}

// Slope returns the zero-padded rolling linear-fit slope of a: for each
// position, a first-degree polynomial is fit to the window and its leading
// coefficient reported. This is the fast gradient used to locate
// transitions. NaN samples inside a window are skipped; windows with fewer
// than two usable samples report zero.
func Slope(a []float64, w int) []float64 {
	w = OddWindow(w)
	h := w / 2
	out := make([]float64, len(a))
	xs := make([]float64, 0, w)
	ys := make([]float64, 0, w)
	for i := h; i < len(a)-h; i++ {
		xs = xs[:0]
		ys = ys[:0]
		for j := 0; j < w; j++ {
			v := a[i-h+j]
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, float64(j))
			ys = append(ys, v)
		}
		if len(xs) < 2 {
			continue
		}
		_, beta := stat.LinearRegression(xs, ys, nil, false)
		out[i] = beta
	}
	return out
}

// Grid holds the windowed mean and dispersion surfaces used by the signal
// optimiser. Row r holds statistics for window width MinPoints+r, columns
// align with the original (gappy) trace positions. Cells whose centred
// window would leave the valid data range are NaN.
type Grid struct {
	MinPoints int
	Widths    int
	Mean      [][]float64
	Std       [][]float64
}

// WindowGrid computes mean and standard deviation for every contiguous
// sub-window of the non-NaN samples of a, for all widths from minPoints up
// to one less than the number of valid samples.
func WindowGrid(a []float64, minPoints int) (*Grid, error) {
	if minPoints < 2 {
		return nil, fmt.Errorf("rollstat: min points %d, need at least 2", minPoints)
	}
	var ind []int
	var s []float64
	for i, v := range a {
		if !math.IsNaN(v) {
			ind = append(ind, i)
			s = append(s, v)
		}
	}
	n := len(s)
	rows := n - minPoints
	if rows < 1 {
		return nil, fmt.Errorf("rollstat: %d valid samples, need more than %d", n, minPoints)
	}

	g := &Grid{MinPoints: minPoints, Widths: rows}
	g.Mean = make([][]float64, rows)
	g.Std = make([][]float64, rows)
	for r := 0; r < rows; r++ {
		w := minPoints + r
		h := w / 2
		mrow := nanRow(len(a))
		srow := nanRow(len(a))
		for c := h; c-h+w <= n; c++ {
			win := s[c-h : c-h+w]
			m := stat.Mean(win, nil)
			mrow[ind[c]] = m
			srow[ind[c]] = popStd(win, m)
		}
		g.Mean[r] = mrow
		g.Std[r] = srow
	}
	return g, nil
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

// popStd is the population (not sample) standard deviation, matching the
// convention of the windowed dispersion surfaces.
func popStd(a []float64, mean float64) float64 {
	if len(a) == 0 {
		return math.NaN()
	}
	var ss float64
	for _, v := range a {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(a)))
}

// NanMean is the mean of the non-NaN elements of a, NaN if there are none.
func NanMean(a []float64) float64 {
	var sum float64
	var n int
	for _, v := range a {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// NanStd is the population standard deviation of the non-NaN elements of a.
func NanStd(a []float64) float64 {
	m := NanMean(a)
	if math.IsNaN(m) {
		return math.NaN()
	}
	var ss float64
	var n int
	for _, v := range a {
		if math.IsNaN(v) {
			continue
		}
		d := v - m
		ss += d * d
		n++
	}
	return math.Sqrt(ss / float64(n))
}

// NanMin returns the smallest non-NaN element of a, NaN if there are none.
func NanMin(a []float64) float64 {
	out := math.NaN()
	for _, v := range a {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v < out {
			out = v
		}
	}
	return out
}

// NanMax returns the largest non-NaN element of a, NaN if there are none.
func NanMax(a []float64) float64 {
	out := math.NaN()
	for _, v := range a {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v > out {
			out = v
		}
	}
	return out
}
