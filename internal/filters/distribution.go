package filters

import (
	"fmt"
	"math"

	"github.com/banshee-data/ablation.report/internal/kde"
	"github.com/banshee-data/ablation.report/internal/rollstat"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// DistributionOptions tunes the distribution filter.
type DistributionOptions struct {
	// LogTransform estimates the density over log10 of the values, for
	// analytes spanning orders of magnitude.
	LogTransform bool
	// Selector restricts which samples the density is estimated from.
	Selector Selector
}

// Distribution splits the analyte's value range at the local minima of a
// kernel density estimate and registers one filter per resulting bin,
// named <analyte>_distribution_<i> in ascending value order. The bin masks
// partition the analyte's non-missing samples. A unimodal (or degenerate)
// value set registers a single <analyte>_distribution_failed filter that
// keeps every non-missing sample.
func Distribution(tr *trace.Trace, r *Registry, analyte string, opts DistributionOptions) error {
	v, ok := tr.ActiveFrame()[analyte]
	if !ok {
		return fmt.Errorf("filters: %q: %w", analyte, ErrUnknownAnalyte)
	}
	base, err := baseSelection(tr, r, opts.Selector, analyte)
	if err != nil {
		return err
	}

	var d []float64
	for i, x := range v {
		if base[i] && (!opts.LogTransform || x > 0) {
			if opts.LogTransform {
				d = append(d, math.Log10(x))
			} else {
				d = append(d, x)
			}
		}
	}

	params := map[string]interface{}{
		"analyte": analyte,
		"log":     opts.LogTransform,
	}

	limits := distributionLimits(d)
	if opts.LogTransform {
		for i, l := range limits {
			limits[i] = math.Pow(10, l)
		}
	}

	if len(limits) == 0 {
		mask := make([]bool, len(v))
		for i, x := range v {
			mask[i] = finite(x)
		}
		info := fmt.Sprintf("%s is within a single distribution. No data removed.", analyte)
		return r.Add(analyte+"_distribution_failed", mask, info, params)
	}

	for bin := 0; bin <= len(limits); bin++ {
		lo, hi := math.Inf(-1), math.Inf(1)
		if bin > 0 {
			lo = limits[bin-1]
		}
		if bin < len(limits) {
			hi = limits[bin]
		}
		mask := make([]bool, len(v))
		for i, x := range v {
			mask[i] = finite(x) && x >= lo && x < hi
		}
		name := fmt.Sprintf("%s_distribution_%d", analyte, bin)
		info := fmt.Sprintf("%s distribution filter, %.2e <i> %.2e", analyte, lo, hi)
		if err := r.Add(name, mask, info, params); err != nil {
			return err
		}
	}
	return nil
}

// distributionLimits returns the value positions of the density minima, or
// nil when the density is unimodal or cannot be estimated.
func distributionLimits(d []float64) []float64 {
	k, err := kde.New(d)
	if err != nil {
		return nil
	}
	points := len(d) / 3
	if points < 10 {
		points = 10
	}
	xs := kde.Linspace(rollstat.NanMin(d), rollstat.NanMax(d), points)
	return kde.FindMins(xs, k.Evaluate(xs))
}
