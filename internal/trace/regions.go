package trace

import "fmt"

// Regions classifies every time sample as background, signal or transition.
// The three masks are mutually exclusive and jointly exhaustive:
// Transition is always the complement of Background OR Signal.
type Regions struct {
	Background []bool
	Signal     []bool
	Transition []bool

	// Range lists are the durable form of the masks, in time units.
	BackgroundRanges []Range
	SignalRanges     []Range
	TransitionRanges []Range
}

// Range is one contiguous True run of a region mask, in time units. Both
// endpoints are inclusive sample times.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewRegions builds a Regions from background and signal masks and derives
// the transition mask and all range lists.
func NewRegions(background, signal []bool, time []float64) (*Regions, error) {
	if len(background) != len(time) || len(signal) != len(time) {
		return nil, fmt.Errorf("trace: region masks length %d/%d, time axis %d", len(background), len(signal), len(time))
	}
	for i := range background {
		if background[i] && signal[i] {
			return nil, fmt.Errorf("trace: sample %d is both background and signal", i)
		}
	}
	r := &Regions{Background: background, Signal: signal}
	r.Transition = make([]bool, len(time))
	for i := range r.Transition {
		r.Transition[i] = !background[i] && !signal[i]
	}
	r.Rebuild(time)
	return r, nil
}

// Rebuild refreshes the range lists from the current masks.
func (r *Regions) Rebuild(time []float64) {
	r.BackgroundRanges = RangesFromMask(r.Background, time)
	r.SignalRanges = RangesFromMask(r.Signal, time)
	r.TransitionRanges = RangesFromMask(r.Transition, time)
}

// RangesFromMask converts a boolean mask to an ordered list of inclusive
// (start, end) time pairs. The first and last samples are forced False
// before conversion, so edge-touching runs are trimmed by one sample.
func RangesFromMask(mask []bool, time []float64) []Range {
	if len(mask) == 0 {
		return nil
	}
	m := make([]bool, len(mask))
	copy(m, mask)
	m[0] = false
	m[len(m)-1] = false

	var out []Range
	start := -1
	for i, v := range m {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			out = append(out, Range{Start: time[start], End: time[i-1]})
			start = -1
		}
	}
	return out
}

// MaskFromRanges converts a range list back to a boolean mask over the
// given time axis. Endpoints are inclusive, so a mask that has been
// edge-cleared round-trips exactly.
func MaskFromRanges(ranges []Range, time []float64) []bool {
	out := make([]bool, len(time))
	for _, r := range ranges {
		for i, t := range time {
			if t >= r.Start && t <= r.End {
				out[i] = true
			}
		}
	}
	return out
}

// NumberSegments assigns a 1-based increasing index to each contiguous True
// run of the signal mask, 0 elsewhere. Returns the labels and the number of
// segments.
func NumberSegments(signal []bool) ([]int, int) {
	labels := make([]int, len(signal))
	n := 0
	inRun := false
	for i, v := range signal {
		if v {
			if !inRun {
				n++
				inRun = true
			}
			labels[i] = n
		} else {
			inRun = false
		}
	}
	return labels, n
}
