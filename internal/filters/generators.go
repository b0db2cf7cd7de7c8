package filters

import (
	"fmt"
	"math"

	"github.com/banshee-data/ablation.report/internal/trace"
)

// Generators derive masks from the trace's active frame and register them.
// Each operates only on samples passing the given selector and present
// (finite) in every analyte, so later filters refine earlier ones.

// baseSelection combines the selector masks of the given analytes with the
// all-analytes non-missing mask.
func baseSelection(tr *trace.Trace, r *Registry, sel Selector, analytes ...string) ([]bool, error) {
	out := nonMissing(tr)
	for _, a := range analytes {
		m, err := r.Grab(sel, a)
		if err != nil {
			return nil, err
		}
		if len(m) != len(out) {
			return nil, fmt.Errorf("filters: selector mask has %d samples, trace has %d", len(m), len(out))
		}
		for i := range out {
			out[i] = out[i] && m[i]
		}
	}
	return out, nil
}

// nonMissing flags samples that are finite in every analyte of the active
// frame.
func nonMissing(tr *trace.Trace) []bool {
	out := make([]bool, tr.Len())
	for i := range out {
		out[i] = true
	}
	for _, v := range tr.ActiveFrame() {
		for i, x := range v {
			if !finite(x) {
				out[i] = false
			}
		}
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
