package cluster

import (
	"fmt"
	"math"
)

// KMeans partitions observations into a fixed number of clusters by
// alternating assignment and centroid updates.
type KMeans struct {
	K int
}

const kmeansMaxIter = 100

// NewKMeans creates a fixed-k partitioning clusterer.
func NewKMeans(k int) *KMeans {
	return &KMeans{K: k}
}

// Name implements Clusterer.
func (km *KMeans) Name() string { return "kmeans" }

// Cluster implements Clusterer. Initial centroids are chosen
// deterministically by farthest-point traversal from the observation mean,
// so identical input always yields identical clusters.
func (km *KMeans) Cluster(data [][]float64) (*Result, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if km.K < 1 {
		return nil, fmt.Errorf("cluster: k must be at least 1, got %d", km.K)
	}
	if km.K > len(data) {
		return nil, fmt.Errorf("cluster: k=%d exceeds %d observations", km.K, len(data))
	}

	centroids := seedCentroids(data, km.K)
	labels := make([]int, len(data))

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, row := range data {
			best := 0
			bestD := math.Inf(1)
			for c, cent := range centroids {
				if d := dist2(row, cent); d < bestD {
					bestD = d
					best = c
				}
			}
			if labels[i] != best+1 {
				labels[i] = best + 1
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		for c := range centroids {
			for f := range centroids[c] {
				centroids[c][f] = 0
			}
			n := 0
			for i, row := range data {
				if labels[i] != c+1 {
					continue
				}
				for f, v := range row {
					centroids[c][f] += v
				}
				n++
			}
			if n > 0 {
				for f := range centroids[c] {
					centroids[c][f] /= float64(n)
				}
			}
		}
	}

	relabelByCentroid(labels, data)
	return &Result{Labels: labels, Masks: masksFromLabels(labels)}, nil
}

// seedCentroids picks k starting centroids: the observation closest to the
// global mean, then repeatedly the observation farthest from all chosen
// seeds.
func seedCentroids(data [][]float64, k int) [][]float64 {
	cols := len(data[0])
	mean := make([]float64, cols)
	for _, row := range data {
		for c, v := range row {
			mean[c] += v
		}
	}
	for c := range mean {
		mean[c] /= float64(len(data))
	}

	first := 0
	bestD := math.Inf(1)
	for i, row := range data {
		if d := dist2(row, mean); d < bestD {
			bestD = d
			first = i
		}
	}

	chosen := []int{first}
	for len(chosen) < k {
		next := -1
		nextD := -1.0
		for i, row := range data {
			minD := math.Inf(1)
			for _, ci := range chosen {
				if d := dist2(row, data[ci]); d < minD {
					minD = d
				}
			}
			if minD > nextD {
				nextD = minD
				next = i
			}
		}
		chosen = append(chosen, next)
	}

	out := make([][]float64, k)
	for i, ci := range chosen {
		out[i] = make([]float64, cols)
		copy(out[i], data[ci])
	}
	return out
}

var _ Clusterer = (*KMeans)(nil)
