// Package autorange separates a trace into background, signal and
// transition regions based on the behaviour of a target analyte. An ideal
// target analyte is abundant and homogeneous in the sample, so its intensity
// cleanly bimodal between washout background and ablation signal.
package autorange

import (
	"fmt"
	"math"

	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/fit"
	"github.com/banshee-data/ablation.report/internal/kde"
	"github.com/banshee-data/ablation.report/internal/rollstat"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// Number of density-evaluation points across the log-intensity range.
const densityBins = 50

// Intensity safety factor applied to the density minimum, biasing ambiguous
// samples toward background.
const thresholdScale = 1.2

// Options tunes region detection. Zero-valued windows take defaults.
type Options struct {
	// Analyte is the target analyte whose intensity drives the split.
	Analyte string

	// GradWindow is the smoothing window for the first derivative of the
	// target trace. Forced odd.
	GradWindow int

	// Window bounds the data subset (centre +/- Window samples) used to
	// fit each transition.
	Window int

	// FineWindow is the finer second-derivative window used to isolate
	// the gradient peak before fitting. Forced odd.
	FineWindow int

	// Conf is the proportional height of the fitted gaussian tails that
	// sets the transition cutoff. Lower values exclude wider transitions.
	Conf float64

	// TransMult adds sigma-multiples to the lower and upper transition
	// cutoffs, for instruments that consistently leave bad data on one
	// side of a transition.
	TransMult [2]float64

	// SafetyFraction is the fraction of the mean transition width under
	// which a background edge is considered suspiciously close to a
	// signal edge and excluded. A heuristic held at 0.3 unless tuned.
	SafetyFraction float64
}

// DefaultOptions returns the standard detection parameters for the given
// target analyte.
func DefaultOptions(analyte string) Options {
	return Options{
		Analyte:        analyte,
		GradWindow:     11,
		Window:         40,
		FineWindow:     5,
		Conf:           0.01,
		SafetyFraction: 0.3,
	}
}

// Run detects background, signal and transition regions on the trace's
// active frame and stores the result on the trace: region masks and range
// lists, plus 1-based segment numbers for each contiguous signal run.
//
// Detection proceeds in two steps. First a kernel density estimate of the
// target analyte's log-intensity is split at its lowest local minimum: all
// samples below that threshold are background, all above are signal. Then
// each background/signal edge is refined by fitting a gaussian to the
// smoothed absolute gradient of the target trace around the edge; the time
// interval where the gaussian exceeds Conf of its peak is removed from both
// masks and becomes transition.
//
// Fit failures on individual transitions are reported to warn and skipped;
// partial segmentation is still stored. A trace whose density has no
// interior minima is classified entirely as background, with zero signal
// segments.
func Run(tr *trace.Trace, opts Options, warn *diag.Collector) error {
	if opts.GradWindow <= 0 {
		opts.GradWindow = 11
	}
	if opts.Window <= 0 {
		opts.Window = 40
	}
	if opts.FineWindow <= 0 {
		opts.FineWindow = 5
	}
	if opts.Conf <= 0 || opts.Conf >= 1 {
		return fmt.Errorf("autorange: conf must be in (0, 1), got %v", opts.Conf)
	}
	if opts.SafetyFraction < 0 {
		return fmt.Errorf("autorange: safety fraction must not be negative, got %v", opts.SafetyFraction)
	}

	v, ok := tr.ActiveFrame()[opts.Analyte]
	if !ok {
		return fmt.Errorf("autorange: analyte %q not in trace", opts.Analyte)
	}
	n := len(v)
	if n < 3 {
		return fmt.Errorf("autorange: trace too short (%d samples)", n)
	}

	threshold, ok := intensityThreshold(v, warn)
	if !ok {
		return storeAllBackground(tr)
	}

	bkg := make([]bool, n)
	sig := make([]bool, n)
	for i, x := range v {
		bkg[i] = x < threshold
		sig[i] = !bkg[i]
	}

	// Absolute smoothed gradient of the target trace; transitions appear
	// as peaks.
	g := rollstat.Slope(v, opts.GradWindow)
	for i, x := range g {
		g[i] = math.Abs(x)
	}

	for _, z := range maskEdges(bkg) {
		interval, ok := fitTransition(tr.Time, g, z, opts, warn)
		if !ok {
			continue
		}
		for i, t := range tr.Time {
			if t > interval.Start && t < interval.End {
				bkg[i] = false
				sig[i] = false
			}
		}
	}

	regions, err := trace.NewRegions(bkg, sig, tr.Time)
	if err != nil {
		return fmt.Errorf("autorange: %w", err)
	}

	if safetyPass(regions, tr.Time, opts.SafetyFraction) {
		regions.Transition = complementOf(regions.Background, regions.Signal)
		regions.Rebuild(tr.Time)
	}

	tr.Regions = regions
	tr.Segments, tr.SegmentCount = trace.NumberSegments(trace.MaskFromRanges(regions.SignalRanges, tr.Time))
	return nil
}

// intensityThreshold estimates the background/signal intensity cutoff from
// the lowest local minimum of the log-intensity density. Returns false when
// the density is unimodal or too degenerate to estimate.
func intensityThreshold(v []float64, warn *diag.Collector) (float64, bool) {
	var vl []float64
	for _, x := range v {
		if x > 1 {
			vl = append(vl, math.Log10(x))
		}
	}
	k, err := kde.New(vl)
	if err != nil {
		warn.Warnf("autorange", "cannot estimate intensity density: %v", err)
		return 0, false
	}
	xs := kde.Linspace(rollstat.NanMin(vl), rollstat.NanMax(vl), densityBins)
	mins := kde.FindMins(xs, k.Evaluate(xs))
	if len(mins) == 0 {
		warn.Warnf("autorange", "intensity density has a single mode; treating the whole trace as background")
		return 0, false
	}
	return thresholdScale * math.Pow(10, mins[0]), true
}

// maskEdges returns the sample index just before each background/signal
// flip.
func maskEdges(bkg []bool) []int {
	var edges []int
	for i := 1; i < len(bkg); i++ {
		if bkg[i] != bkg[i-1] {
			edges = append(edges, i-1)
		}
	}
	return edges
}

// fitTransition fits a gaussian to the gradient peak near edge index z and
// converts the fit into a time interval to exclude. The first attempt
// bounds the peak using fine-scale gradient minima either side of the
// maximum; if that fit fails, a retry uses the whole local window. A second
// failure skips the transition with a warning.
func fitTransition(time, g []float64, z int, opts Options, warn *diag.Collector) (trace.Range, bool) {
	lo := z - opts.Window
	if lo < 0 {
		lo = 0
	}
	hi := z + opts.Window
	if hi > len(g) {
		hi = len(g)
	}
	xs := time[lo:hi]
	ys := g[lo:hi]

	ci := maxIndex(ys)
	if ci < 0 {
		warn.Warnf("autorange", "no usable gradient near t=%.3g; transition skipped", time[z])
		return trace.Range{}, false
	}

	low, high := peakBounds(xs, ys, ci, opts.FineWindow)
	coeffs, err := fitWindow(xs, ys, low, high)
	if err != nil {
		coeffs, err = fitWindow(xs, ys, xs[0], xs[len(xs)-1])
	}
	if err != nil {
		warn.Warnf("autorange", "transition fit failed near t=%.3g: %v", xs[ci], err)
		return trace.Range{}, false
	}

	start, end := fit.GaussianInverse(opts.Conf, coeffs.Mu, coeffs.Sigma)
	start += coeffs.Sigma * opts.TransMult[0]
	end += coeffs.Sigma * opts.TransMult[1]
	if !(end > start) {
		warn.Warnf("autorange", "degenerate transition width near t=%.3g; transition skipped", xs[ci])
		return trace.Range{}, false
	}
	return trace.Range{Start: start, End: end}, true
}

// peakBounds brackets the gradient peak at index ci using the nearest
// fine-scale slope minima on each side, falling back to the window edges
// when a side has none.
func peakBounds(xs, ys []float64, ci int, fineWin int) (low, high float64) {
	low, high = xs[0], xs[len(xs)-1]
	yd := rollstat.Slope(ys, fineWin)
	for _, x := range kde.FindMins(xs, yd) {
		if x < xs[ci] && x > low {
			low = x
		}
		if x > xs[ci] && x < high {
			high = x
		}
	}
	return low, high
}

// fitWindow fits a gaussian to the (x, y) samples with low <= x <= high.
func fitWindow(xs, ys []float64, low, high float64) (fit.GaussianCoeffs, error) {
	var fx, fy []float64
	for i, x := range xs {
		if x >= low && x <= high {
			fx = append(fx, x)
			fy = append(fy, ys[i])
		}
	}
	ci := maxIndex(fy)
	if ci < 0 {
		return fit.GaussianCoeffs{}, fmt.Errorf("no finite samples in fit window")
	}
	p0 := fit.GaussianCoeffs{A: fy[ci], Mu: fx[ci], Sigma: (high - low) / 2}
	return fit.Gaussian(fx, fy, p0)
}

// safetyPass catches transitions the derivative method missed: any
// background edge closer to a signal edge than fraction times the mean
// transition width has a half-width margin excluded around it from both
// masks. Reports whether anything changed.
func safetyPass(r *trace.Regions, time []float64, fraction float64) bool {
	if len(r.TransitionRanges) == 0 {
		return false
	}
	var trw float64
	for _, t := range r.TransitionRanges {
		trw += t.End - t.Start
	}
	trw /= float64(len(r.TransitionRanges))
	if trw <= 0 {
		return false
	}

	changed := false
	for _, b := range rangeEdges(r.BackgroundRanges) {
		if !nearAnyEdge(b, rangeEdges(r.SignalRanges), fraction*trw) {
			continue
		}
		for i, t := range time {
			if t >= b-trw/2 && t <= b+trw/2 {
				r.Background[i] = false
				r.Signal[i] = false
				changed = true
			}
		}
	}
	return changed
}

func rangeEdges(ranges []trace.Range) []float64 {
	var out []float64
	for _, r := range ranges {
		out = append(out, r.Start, r.End)
	}
	return out
}

func nearAnyEdge(b float64, edges []float64, limit float64) bool {
	for _, e := range edges {
		if math.Abs(e-b) < limit {
			return true
		}
	}
	return false
}

// storeAllBackground records the degenerate single-distribution case:
// everything background, no signal segments.
func storeAllBackground(tr *trace.Trace) error {
	n := tr.Len()
	bkg := make([]bool, n)
	for i := range bkg {
		bkg[i] = true
	}
	regions, err := trace.NewRegions(bkg, make([]bool, n), tr.Time)
	if err != nil {
		return fmt.Errorf("autorange: %w", err)
	}
	tr.Regions = regions
	tr.Segments = make([]int, n)
	tr.SegmentCount = 0
	return nil
}

func complementOf(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range out {
		out[i] = !a[i] && !b[i]
	}
	return out
}

func maxIndex(a []float64) int {
	best := -1
	bv := math.Inf(-1)
	for i, x := range a {
		if !math.IsNaN(x) && x > bv {
			bv = x
			best = i
		}
	}
	return best
}
