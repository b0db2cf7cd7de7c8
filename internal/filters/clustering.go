package filters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/ablation.report/internal/cluster"
	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// ClusteringOptions tunes the clustering filter.
type ClusteringOptions struct {
	// Normalise z-scales each feature column before clustering. Always
	// applied when clustering more than one analyte, since raw analyte
	// intensities are not commensurate.
	Normalise bool
	// IncludeTime adds the time axis as a feature column.
	IncludeTime bool
	// Selector restricts which samples are clustered.
	Selector Selector
	// TargetClusters, when positive and the clusterer is DBSCAN,
	// auto-tunes the neighbourhood radius toward this cluster count.
	TargetClusters int
	// MaxIter bounds the auto-tune loop. Zero means 200.
	MaxIter int
}

// Clustering assigns samples to clusters of the given analytes' values and
// registers one filter per cluster, named
// <analytes>_cluster-<method>_<label>. DBSCAN additionally registers
// _noise and _core filters. Labels are mapped back to full trace length;
// samples outside the selection are False in every cluster mask.
func Clustering(tr *trace.Trace, r *Registry, analytes []string, c cluster.Clusterer, opts ClusteringOptions, warn *diag.Collector) error {
	if len(analytes) == 0 {
		return fmt.Errorf("filters: clustering needs at least one analyte")
	}
	frame := tr.ActiveFrame()
	for _, a := range analytes {
		if _, ok := frame[a]; !ok {
			return fmt.Errorf("filters: %q: %w", a, ErrUnknownAnalyte)
		}
	}
	base, err := baseSelection(tr, r, opts.Selector, analytes...)
	if err != nil {
		return err
	}

	var sampled []int
	for i, ok := range base {
		if ok {
			sampled = append(sampled, i)
		}
	}
	if len(sampled) == 0 {
		return fmt.Errorf("filters: no samples pass the current selection")
	}

	rows := make([][]float64, len(sampled))
	for ri, i := range sampled {
		row := make([]float64, 0, len(analytes)+1)
		for _, a := range analytes {
			row = append(row, frame[a][i])
		}
		if opts.IncludeTime {
			row = append(row, tr.Time[i])
		}
		rows[ri] = row
	}
	if opts.Normalise || len(analytes) > 1 {
		rows = cluster.Scale(rows)
	}

	res, err := clusterRows(rows, c, opts, warn)
	if err != nil {
		return err
	}

	namebase := strings.Join(analytes, "-") + "_cluster-" + c.Name()
	info := strings.Join(analytes, "-") + " cluster filter."
	params := map[string]interface{}{
		"analytes":     append([]string(nil), analytes...),
		"method":       c.Name(),
		"normalise":    opts.Normalise,
		"include_time": opts.IncludeTime,
	}

	labels := make([]int, 0, len(res.Masks))
	for k := range res.Masks {
		labels = append(labels, k)
	}
	sort.Ints(labels)

	for _, k := range labels {
		name := fmt.Sprintf("%s_%d", namebase, k)
		if k == cluster.Noise {
			name = namebase + "_noise"
		}
		mask := expandMask(res.Masks[k], sampled, tr.Len())
		if err := r.Add(name, mask, info, params); err != nil {
			return err
		}
	}
	if res.Core != nil {
		mask := expandMask(res.Core, sampled, tr.Len())
		if err := r.Add(namebase+"_core", mask, info, params); err != nil {
			return err
		}
	}
	return nil
}

func clusterRows(rows [][]float64, c cluster.Clusterer, opts ClusteringOptions, warn *diag.Collector) (*cluster.Result, error) {
	d, isDBSCAN := c.(*cluster.DBSCAN)
	if !isDBSCAN || opts.TargetClusters <= 0 {
		return c.Cluster(rows)
	}
	maxIter := opts.MaxIter
	if maxIter == 0 {
		maxIter = 200
	}
	res, _, err := cluster.AutoTuneDBSCAN(rows, opts.TargetClusters, d.MinPts, maxIter, warn)
	return res, err
}

// expandMask lifts a mask over sampled rows back onto the full trace index
// space.
func expandMask(sub []bool, sampled []int, n int) []bool {
	out := make([]bool, n)
	for ri, i := range sampled {
		if sub[ri] {
			out[i] = true
		}
	}
	return out
}
