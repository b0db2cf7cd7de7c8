// Package cluster provides the pluggable unsupervised clustering capability
// behind the clustering filter generator. Three variants share one
// contract: mode-seeking (mean shift), fixed-k partitioning (k-means) and
// density reachability with noise detection (DBSCAN).
package cluster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Noise is the label assigned to points no cluster claims.
const Noise = -1

// Result maps each cluster label to a membership mask over the input rows.
// Labels are 1-based; Noise collects unclaimed points. Core is non-nil only
// for density-reachability clustering and marks core samples.
type Result struct {
	Labels []int
	Masks  map[int][]bool
	Core   []bool
}

// Clusters reports the number of real (non-noise) clusters found.
func (r *Result) Clusters() int {
	n := 0
	for label := range r.Masks {
		if label != Noise {
			n++
		}
	}
	return n
}

// Clusterer assigns every observation row to a cluster.
// Implementations must be deterministic: identical input produces identical
// labelling.
type Clusterer interface {
	Cluster(data [][]float64) (*Result, error)
	Name() string
}

// Scale z-scores every feature column in place-safe copies: remove the
// column mean, divide by the column standard deviation. Constant columns
// are centred only.
func Scale(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return nil
	}
	cols := len(data[0])
	out := make([][]float64, len(data))
	for i := range out {
		out[i] = make([]float64, cols)
		copy(out[i], data[i])
	}
	col := make([]float64, len(data))
	for c := 0; c < cols; c++ {
		for i := range data {
			col[i] = data[i][c]
		}
		m := stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		for i := range out {
			out[i][c] -= m
			if sd > 0 {
				out[i][c] /= sd
			}
		}
	}
	return out
}

// validate checks for a rectangular, non-empty observation matrix.
func validate(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("cluster: no observations")
	}
	cols := len(data[0])
	if cols == 0 {
		return fmt.Errorf("cluster: observations have no features")
	}
	for i, row := range data {
		if len(row) != cols {
			return fmt.Errorf("cluster: row %d has %d features, want %d", i, len(row), cols)
		}
	}
	return nil
}

func dist2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// masksFromLabels builds per-label membership masks.
func masksFromLabels(labels []int) map[int][]bool {
	out := make(map[int][]bool)
	for i, l := range labels {
		m, ok := out[l]
		if !ok {
			m = make([]bool, len(labels))
			out[l] = m
		}
		m[i] = true
	}
	return out
}

// relabelByCentroid renumbers cluster labels 1..K ordered by centroid so
// identical data always yields identical labelling, regardless of
// discovery order.
func relabelByCentroid(labels []int, data [][]float64) {
	type centroid struct {
		label int
		pos   []float64
	}
	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		if l == Noise || l == 0 {
			continue
		}
		s, ok := sums[l]
		if !ok {
			s = make([]float64, len(data[i]))
			sums[l] = s
		}
		for c, v := range data[i] {
			s[c] += v
		}
		counts[l]++
	}

	cents := make([]centroid, 0, len(sums))
	for l, s := range sums {
		pos := make([]float64, len(s))
		for c := range s {
			pos[c] = s[c] / float64(counts[l])
		}
		cents = append(cents, centroid{label: l, pos: pos})
	}
	sort.Slice(cents, func(i, j int) bool {
		for c := range cents[i].pos {
			if cents[i].pos[c] != cents[j].pos[c] {
				return cents[i].pos[c] < cents[j].pos[c]
			}
		}
		return cents[i].label < cents[j].label
	})

	remap := make(map[int]int, len(cents))
	for i, c := range cents {
		remap[c.label] = i + 1
	}
	for i, l := range labels {
		if l == Noise || l == 0 {
			continue
		}
		labels[i] = remap[l]
	}
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
