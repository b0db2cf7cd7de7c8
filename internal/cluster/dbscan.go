package cluster

import (
	"fmt"

	"github.com/banshee-data/ablation.report/internal/diag"
)

// Default DBSCAN parameters for z-scaled trace features.
const (
	// DefaultDBSCANEps is the default neighbourhood radius in scaled units.
	DefaultDBSCANEps = 0.3
	// EpsShrinkFactor is applied per auto-tune step when hunting a target
	// cluster count.
	EpsShrinkFactor = 0.95
)

// DBSCAN clusters by density reachability and detects noise. Points with at
// least MinPts neighbours within Eps are core points; clusters grow from
// core points through their neighbourhoods; everything unreachable is
// labelled Noise.
type DBSCAN struct {
	Eps    float64
	MinPts int
}

// NewDBSCAN creates a density-reachability clusterer with the given
// neighbourhood radius and core-point threshold.
func NewDBSCAN(eps float64, minPts int) *DBSCAN {
	return &DBSCAN{Eps: eps, MinPts: minPts}
}

// Name implements Clusterer.
func (d *DBSCAN) Name() string { return "DBSCAN" }

// Cluster implements Clusterer. The output is deterministic: cluster labels
// are renumbered by centroid order.
func (d *DBSCAN) Cluster(data [][]float64) (*Result, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if d.Eps <= 0 {
		return nil, fmt.Errorf("cluster: eps must be positive, got %v", d.Eps)
	}
	if d.MinPts < 1 {
		return nil, fmt.Errorf("cluster: min points must be at least 1, got %d", d.MinPts)
	}

	n := len(data)
	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	core := make([]bool, n)
	eps2 := d.Eps * d.Eps
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue // already processed
		}
		neighbors := regionQuery(data, i, eps2)
		if len(neighbors) < d.MinPts {
			labels[i] = Noise
			continue
		}
		core[i] = true
		clusterID++
		expandCluster(data, labels, core, i, neighbors, clusterID, eps2, d.MinPts)
	}

	relabelByCentroid(labels, data)
	return &Result{Labels: labels, Masks: masksFromLabels(labels), Core: core}, nil
}

// regionQuery returns indices of all points within eps of data[idx],
// including idx itself.
func regionQuery(data [][]float64, idx int, eps2 float64) []int {
	var neighbors []int
	for j := range data {
		if dist2(data[idx], data[j]) <= eps2 {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// expandCluster grows a cluster from a core point using a queue of
// reachable neighbours.
func expandCluster(data [][]float64, labels []int, core []bool,
	seedIdx int, neighbors []int, clusterID int, eps2 float64, minPts int) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == Noise {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue // already processed
		}

		labels[idx] = clusterID
		newNeighbors := regionQuery(data, idx, eps2)
		if len(newNeighbors) >= minPts {
			core[idx] = true
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

// AutoTuneDBSCAN shrinks the neighbourhood radius stepwise until the
// requested number of clusters emerges, up to maxIter steps. If shrinking
// overshoots (the cluster count drops), the previous radius is restored and
// its best-effort result returned with a warning; hitting the iteration cap
// warns as well. The chosen eps is returned for audit metadata.
func AutoTuneDBSCAN(data [][]float64, targetClusters, minPts, maxIter int, warn *diag.Collector) (*Result, float64, error) {
	if targetClusters < 1 {
		return nil, 0, fmt.Errorf("cluster: target cluster count must be at least 1, got %d", targetClusters)
	}
	if maxIter < 1 {
		return nil, 0, fmt.Errorf("cluster: iteration budget must be at least 1, got %d", maxIter)
	}

	eps := 1.0 / EpsShrinkFactor
	var res *Result
	var err error
	clusters := 0
	for iter := 0; clusters < targetClusters; iter++ {
		last := clusters
		eps *= EpsShrinkFactor
		res, err = NewDBSCAN(eps, minPts).Cluster(data)
		if err != nil {
			return nil, 0, err
		}
		clusters = res.Clusters()

		if clusters < last {
			// Shrinking fragmented clusters into noise instead of
			// splitting them. Step back and keep the best effort.
			eps /= EpsShrinkFactor
			res, err = NewDBSCAN(eps, minPts).Cluster(data)
			if err != nil {
				return nil, 0, err
			}
			warn.Warnf("cluster", "unable to find %d clusters; found %d with eps %.3g", targetClusters, res.Clusters(), eps)
			break
		}
		if iter+1 == maxIter {
			warn.Warnf("cluster", "eps tuning hit the %d iteration cap with %d of %d clusters", maxIter, clusters, targetClusters)
			break
		}
	}
	return res, eps, nil
}

// Compile-time interface check, matching the registry's expectations.
var _ Clusterer = (*DBSCAN)(nil)
