package filters

import (
	"fmt"

	"github.com/banshee-data/ablation.report/internal/trace"
)

// ThresholdMode selects which side of the threshold a threshold filter
// keeps.
type ThresholdMode int

const (
	// KeepAbove keeps samples at or above the threshold.
	KeepAbove ThresholdMode = iota
	// KeepBelow keeps samples at or below the threshold.
	KeepBelow
)

func (m ThresholdMode) String() string {
	if m == KeepBelow {
		return "below"
	}
	return "above"
}

// Threshold registers a filter keeping samples on one side of a fixed
// intensity threshold. The filter is named <analyte>_thresh_above or
// <analyte>_thresh_below.
func Threshold(tr *trace.Trace, r *Registry, analyte string, threshold float64, mode ThresholdMode, sel Selector) error {
	v, ok := tr.ActiveFrame()[analyte]
	if !ok {
		return fmt.Errorf("filters: %q: %w", analyte, ErrUnknownAnalyte)
	}
	base, err := baseSelection(tr, r, sel, analyte)
	if err != nil {
		return err
	}

	mask := make([]bool, len(v))
	for i, x := range v {
		if !base[i] {
			continue
		}
		if mode == KeepBelow {
			mask[i] = x <= threshold
		} else {
			mask[i] = x >= threshold
		}
	}

	name := fmt.Sprintf("%s_thresh_%s", analyte, mode)
	info := fmt.Sprintf("Keep %s %s %.3e", mode, analyte, threshold)
	params := map[string]interface{}{
		"analyte":   analyte,
		"threshold": threshold,
		"mode":      mode.String(),
	}
	return r.Add(name, mask, info, params)
}
