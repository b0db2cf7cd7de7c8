package cluster

import (
	"fmt"
	"math"
	"sort"
)

// MeanShift clusters by seeking the modes of the observation density with a
// flat kernel. The number of clusters is discovered, not specified. A zero
// Bandwidth is estimated from the data.
type MeanShift struct {
	Bandwidth float64
}

const (
	meanShiftMaxIter  = 300
	bandwidthQuantile = 0.3
)

// NewMeanShift creates a mode-seeking clusterer. Pass bandwidth 0 to
// estimate it from the average k-nearest-neighbour radius.
func NewMeanShift(bandwidth float64) *MeanShift {
	return &MeanShift{Bandwidth: bandwidth}
}

// Name implements Clusterer.
func (m *MeanShift) Name() string { return "meanshift" }

// Cluster implements Clusterer. Every observation is shifted to its local
// density mode; modes closer than the bandwidth are merged and points take
// the label of their mode.
func (m *MeanShift) Cluster(data [][]float64) (*Result, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	bw := m.Bandwidth
	if bw == 0 {
		bw = EstimateBandwidth(data)
	}
	if bw <= 0 || !isFinite(bw) {
		return nil, fmt.Errorf("cluster: cannot estimate a positive bandwidth")
	}
	bw2 := bw * bw
	tol2 := 1e-6 * bw2

	cols := len(data[0])
	modes := make([][]float64, len(data))
	for i, row := range data {
		x := make([]float64, cols)
		copy(x, row)
		next := make([]float64, cols)
		for iter := 0; iter < meanShiftMaxIter; iter++ {
			for c := range next {
				next[c] = 0
			}
			n := 0
			for _, p := range data {
				if dist2(x, p) <= bw2 {
					for c := range p {
						next[c] += p[c]
					}
					n++
				}
			}
			if n == 0 {
				break
			}
			for c := range next {
				next[c] /= float64(n)
			}
			if dist2(x, next) < tol2 {
				copy(x, next)
				break
			}
			copy(x, next)
		}
		modes[i] = x
	}

	// Merge modes within one bandwidth of each other.
	var centers [][]float64
	labels := make([]int, len(data))
	for i, mode := range modes {
		assigned := 0
		for ci, c := range centers {
			if dist2(mode, c) <= bw2 {
				assigned = ci + 1
				break
			}
		}
		if assigned == 0 {
			centers = append(centers, mode)
			assigned = len(centers)
		}
		labels[i] = assigned
	}

	relabelByCentroid(labels, data)
	return &Result{Labels: labels, Masks: masksFromLabels(labels)}, nil
}

// EstimateBandwidth returns the mean distance from each observation to its
// k-th nearest neighbour, with k a fixed quantile of the observation count.
func EstimateBandwidth(data [][]float64) float64 {
	n := len(data)
	if n < 2 {
		return 0
	}
	k := int(bandwidthQuantile * float64(n))
	if k < 1 {
		k = 1
	}

	dists := make([]float64, 0, n-1)
	var sum float64
	for i := range data {
		dists = dists[:0]
		for j := range data {
			if i == j {
				continue
			}
			dists = append(dists, math.Sqrt(dist2(data[i], data[j])))
		}
		sort.Float64s(dists)
		sum += dists[k-1]
	}
	return sum / float64(n)
}

var _ Clusterer = (*MeanShift)(nil)
