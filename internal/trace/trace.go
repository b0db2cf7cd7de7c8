// Package trace holds the in-memory data model for one instrument run: the
// shared time axis, per-analyte value sequences at each processing stage,
// and the region masks produced by segmentation.
package trace

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Stage identifies which processing stage a frame of analyte data belongs
// to. Operations read and write stage frames explicitly; there is no
// ambient "current data" aliasing.
type Stage int

const (
	// StageRaw is the data as supplied by the ingestion boundary.
	StageRaw Stage = iota
	// StageDespiked is raw data after spike and decay artifact removal.
	StageDespiked
	// StageSignal is despiked data with non-signal samples set to NaN.
	StageSignal
	// StageBackground is despiked data with non-background samples set to NaN.
	StageBackground
)

// String returns the stage name used in diagnostics and parameter records.
func (s Stage) String() string {
	switch s {
	case StageRaw:
		return "raw"
	case StageDespiked:
		return "despiked"
	case StageSignal:
		return "signal"
	case StageBackground:
		return "background"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Frame maps analyte names to their value sequences for one stage. All
// sequences in a frame share the trace's time axis and length.
type Frame map[string][]float64

// Copy returns a deep copy of the frame.
func (f Frame) Copy() Frame {
	out := make(Frame, len(f))
	for a, v := range f {
		cp := make([]float64, len(v))
		copy(cp, v)
		out[a] = cp
	}
	return out
}

// Trace is the full time-aligned set of analyte sequences for one sample
// run, plus the segmentation state derived from it. A Trace owns its frames
// and regions exclusively; traces may be processed in parallel with no
// shared state between them.
type Trace struct {
	ID       uuid.UUID
	Time     []float64
	Analytes []string

	frames map[Stage]Frame
	active Stage

	// Regions is populated by autorange. Nil until then.
	Regions *Regions
	// Segments numbers each contiguous signal run (0 = not signal).
	Segments []int
	// SegmentCount is the highest segment number. Zero means autorange
	// found no signal (degenerate single-distribution trace).
	SegmentCount int
}

// New builds a Trace from a time axis and raw analyte data. All analyte
// sequences must be non-empty and the same length as the time axis.
func New(time []float64, raw Frame) (*Trace, error) {
	if len(time) == 0 {
		return nil, fmt.Errorf("trace: empty time axis")
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("trace: no analytes supplied")
	}
	analytes := make([]string, 0, len(raw))
	for a, v := range raw {
		if len(v) != len(time) {
			return nil, fmt.Errorf("trace: analyte %s has %d samples, time axis has %d", a, len(v), len(time))
		}
		analytes = append(analytes, a)
	}
	sort.Strings(analytes)

	t := &Trace{
		ID:       uuid.New(),
		Time:     time,
		Analytes: analytes,
		frames:   map[Stage]Frame{StageRaw: raw.Copy()},
		active:   StageRaw,
	}
	return t, nil
}

// Len returns the number of samples on the time axis.
func (t *Trace) Len() int { return len(t.Time) }

// TimeStep returns the spacing of the first two time samples. The scan is
// assumed uniform.
func (t *Trace) TimeStep() float64 {
	if len(t.Time) < 2 {
		return math.NaN()
	}
	return t.Time[1] - t.Time[0]
}

// Frame returns the data frame for a stage, or false if that stage has not
// been produced yet.
func (t *Trace) Frame(s Stage) (Frame, bool) {
	f, ok := t.frames[s]
	return f, ok
}

// SetFrame stores a stage frame after validating its shape against the
// time axis.
func (t *Trace) SetFrame(s Stage, f Frame) error {
	for a, v := range f {
		if len(v) != len(t.Time) {
			return fmt.Errorf("trace: stage %s analyte %s has %d samples, want %d", s, a, len(v), len(t.Time))
		}
	}
	t.frames[s] = f
	return nil
}

// Active returns the most recently produced working stage.
func (t *Trace) Active() Stage { return t.active }

// SetActive marks a stage as the working stage. The stage frame must exist.
func (t *Trace) SetActive(s Stage) error {
	if _, ok := t.frames[s]; !ok {
		return fmt.Errorf("trace: stage %s has not been produced", s)
	}
	t.active = s
	return nil
}

// ActiveFrame returns the frame for the working stage.
func (t *Trace) ActiveFrame() Frame { return t.frames[t.active] }

// Separate builds the StageSignal and StageBackground frames from the
// working stage, padding samples outside each region with NaN. Regions must
// have been identified first.
func (t *Trace) Separate() error {
	if t.Regions == nil {
		return fmt.Errorf("trace: regions not identified; run autorange first")
	}
	src := t.ActiveFrame()
	sig := make(Frame, len(src))
	bkg := make(Frame, len(src))
	for a, v := range src {
		sv := make([]float64, len(v))
		bv := make([]float64, len(v))
		for i, x := range v {
			if t.Regions.Signal[i] {
				sv[i] = x
			} else {
				sv[i] = math.NaN()
			}
			if t.Regions.Background[i] {
				bv[i] = x
			} else {
				bv[i] = math.NaN()
			}
		}
		sig[a] = sv
		bkg[a] = bv
	}
	t.frames[StageSignal] = sig
	t.frames[StageBackground] = bkg
	return nil
}
