package trace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SegmentStat holds the per-segment summary for one analyte.
type SegmentStat struct {
	Segment int
	Mean    float64
	Std     float64
	Count   int
}

// SegmentStats computes nan-aware mean and standard deviation of a stage
// frame for each numbered signal segment, restricted to samples passing the
// supplied selection mask. A nil mask selects everything. Segments with no
// selected samples report NaN statistics and a zero count.
func (t *Trace) SegmentStats(f Frame, analyte string, selection []bool) ([]SegmentStat, error) {
	v, ok := f[analyte]
	if !ok {
		return nil, fmt.Errorf("trace: unknown analyte %s", analyte)
	}
	if t.Segments == nil {
		return nil, fmt.Errorf("trace: segments not numbered; run autorange first")
	}
	if selection != nil && len(selection) != len(v) {
		return nil, fmt.Errorf("trace: selection mask length %d, want %d", len(selection), len(v))
	}

	out := make([]SegmentStat, 0, t.SegmentCount)
	for seg := 1; seg <= t.SegmentCount; seg++ {
		var vals []float64
		for i, x := range v {
			if t.Segments[i] != seg || math.IsNaN(x) {
				continue
			}
			if selection != nil && !selection[i] {
				continue
			}
			vals = append(vals, x)
		}
		s := SegmentStat{Segment: seg, Count: len(vals), Mean: math.NaN(), Std: math.NaN()}
		if len(vals) > 0 {
			s.Mean = stat.Mean(vals, nil)
			s.Std = stat.StdDev(vals, nil)
		}
		out = append(out, s)
	}
	return out, nil
}
