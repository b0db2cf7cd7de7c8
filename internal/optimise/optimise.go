// Package optimise selects the best contiguous data window of a trace: the
// longest region over which every considered analyte is simultaneously
// quiet (low dispersion) and low in scaled amplitude. Selection is a grid
// search over all (centre, width) sub-windows, thresholded by statistics
// derived from the grid itself.
package optimise

import (
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"

	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/kde"
	"github.com/banshee-data/ablation.report/internal/rollstat"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// ThresholdMode selects how the amplitude and dispersion thresholds are
// derived from the pooled window statistics.
type ThresholdMode string

const (
	// ModeKDEFirstMax thresholds at the first local density maximum with
	// at least a quarter of the peak density. Targets the dominant
	// low-value mode rather than the largest one.
	ModeKDEFirstMax ThresholdMode = "kde_first_max"
	// ModeKDEMax thresholds at the global density maximum.
	ModeKDEMax ThresholdMode = "kde_max"
	// ModeMedian thresholds at the median of the pooled values.
	ModeMedian ThresholdMode = "median"
	// ModeMean thresholds at the mean of the pooled values.
	ModeMean ThresholdMode = "mean"
)

// Margin subtracted from both thresholds before cell selection, so cells
// sitting exactly on a threshold do not qualify.
const thresholdMargin = 0.01

// Fraction of the peak density a local maximum needs to count in
// ModeKDEFirstMax.
const peakProminence = 0.25

// Options tunes the optimiser.
type Options struct {
	// Analytes to consider. All must exist in the trace's active frame.
	Analytes []string
	// MinPoints is the narrowest window considered. Zero means 5.
	MinPoints int
	// Mode derives the thresholds. Empty means ModeKDEFirstMax.
	Mode ThresholdMode
	// Weights scales each analyte's influence. Nil means equal weights;
	// otherwise must align with Analytes.
	Weights []float64
}

// Result is the selected window plus the diagnostic surfaces used to find
// it.
type Result struct {
	// Mask is True across the selected window, trace length.
	Mask []bool
	// Lims is the half-open sample range of the selection. Zero width
	// means no window qualified.
	Lims [2]int
	// Centre and Width locate the winning grid cell.
	Centre int
	Width  int

	MeanThreshold float64
	StdThreshold  float64

	// Means and Stds are the analyte-averaged scaled surfaces; row r is
	// window width MinPoints+r, columns are window centres.
	Means [][]float64
	Stds  [][]float64

	MinPoints int
	Analytes  []string
}

// Empty reports whether no window passed both thresholds.
func (r *Result) Empty() bool { return r.Lims[0] == r.Lims[1] }

// Run performs the optimisation grid search on the trace's active frame.
// If no cell passes both thresholds a warning is reported and an
// empty-selection result returned, not an error.
func Run(tr *trace.Trace, opts Options, warn *diag.Collector) (*Result, error) {
	if len(opts.Analytes) == 0 {
		return nil, fmt.Errorf("optimise: no analytes given")
	}
	if opts.Weights != nil && len(opts.Weights) != len(opts.Analytes) {
		return nil, fmt.Errorf("optimise: %d weights for %d analytes", len(opts.Weights), len(opts.Analytes))
	}
	minPoints := opts.MinPoints
	if minPoints == 0 {
		minPoints = 5
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeKDEFirstMax
	}

	frame := tr.ActiveFrame()
	n := tr.Len()

	var means, stds [][][]float64
	for _, a := range opts.Analytes {
		v, ok := frame[a]
		if !ok {
			return nil, fmt.Errorf("optimise: analyte %q not in trace", a)
		}
		g, err := rollstat.WindowGrid(v, minPoints)
		if err != nil {
			return nil, fmt.Errorf("optimise: %s: %w", a, err)
		}
		means = append(means, scaleSurface(g.Mean))
		stds = append(stds, scaleSurface(g.Std))
	}
	if err := checkShapes(means, opts.Analytes); err != nil {
		return nil, err
	}

	if opts.Weights != nil {
		for ai := range means {
			applyWeight(means[ai], opts.Weights[ai])
			applyWeight(stds[ai], opts.Weights[ai])
		}
	}

	msmeans := averageSurfaces(means)
	msstds := averageSurfaces(stds)

	meanThreshold, err := threshold(msmeans, mode, warn)
	if err != nil {
		return nil, fmt.Errorf("optimise: amplitude threshold: %w", err)
	}
	stdThreshold, err := threshold(msstds, mode, warn)
	if err != nil {
		return nil, fmt.Errorf("optimise: dispersion threshold: %w", err)
	}

	res := &Result{
		MeanThreshold: meanThreshold,
		StdThreshold:  stdThreshold,
		Means:         msmeans,
		Stds:          msstds,
		MinPoints:     minPoints,
		Analytes:      append([]string(nil), opts.Analytes...),
		Mask:          make([]bool, n),
	}

	centre, width, found := selectCell(msmeans, msstds, meanThreshold, stdThreshold, minPoints)
	if !found {
		warn.Warnf("optimise", "no window of %d+ points passed both thresholds; selection is empty", minPoints)
		return res, nil
	}
	res.Centre = centre
	res.Width = width

	// Window limits around the centre differ for even and odd widths
	// because a centred even window has no middle sample.
	if width%2 == 0 {
		res.Lims = [2]int{centre - width/2, centre + width/2 + 1}
	} else {
		res.Lims = [2]int{centre - width/2 - 1, centre + width/2 - 1}
	}
	if res.Lims[0] < 0 {
		res.Lims[0] = 0
	}
	if res.Lims[1] > n {
		res.Lims[1] = n
	}
	for i := res.Lims[0]; i < res.Lims[1]; i++ {
		res.Mask[i] = true
	}
	return res, nil
}

// scaleSurface location-scale-normalises a whole surface in place and
// returns it. Normalising across the surface, not per width row, keeps
// widths whose every window is poor from renormalising into contention.
func scaleSurface(surface [][]float64) [][]float64 {
	var m, ss float64
	var cnt int
	for _, row := range surface {
		for _, v := range row {
			if !math.IsNaN(v) {
				m += v
				cnt++
			}
		}
	}
	if cnt == 0 {
		return surface
	}
	m /= float64(cnt)
	for _, row := range surface {
		for _, v := range row {
			if !math.IsNaN(v) {
				d := v - m
				ss += d * d
			}
		}
	}
	s := math.Sqrt(ss / float64(cnt))
	for _, row := range surface {
		for i, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if s > 0 {
				row[i] = (v - m) / s
			} else {
				row[i] = 0
			}
		}
	}
	return surface
}

func applyWeight(surface [][]float64, w float64) {
	for _, row := range surface {
		for i := range row {
			row[i] *= w
		}
	}
}

func checkShapes(surfaces [][][]float64, analytes []string) error {
	for i := 1; i < len(surfaces); i++ {
		if len(surfaces[i]) != len(surfaces[0]) {
			return fmt.Errorf("optimise: analytes %s and %s have different numbers of valid samples", analytes[0], analytes[i])
		}
	}
	return nil
}

// averageSurfaces averages per-analyte surfaces cell-wise, ignoring NaN.
func averageSurfaces(surfaces [][][]float64) [][]float64 {
	rows := len(surfaces[0])
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		cols := len(surfaces[0][r])
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			var sum float64
			var cnt int
			for _, s := range surfaces {
				if v := s[r][c]; !math.IsNaN(v) {
					sum += v
					cnt++
				}
			}
			if cnt == 0 {
				row[c] = math.NaN()
			} else {
				row[c] = sum / float64(cnt)
			}
		}
		out[r] = row
	}
	return out
}

// threshold derives a scalar threshold from every finite cell of the
// surface using the given mode.
func threshold(surface [][]float64, mode ThresholdMode, warn *diag.Collector) (float64, error) {
	var pool []float64
	for _, row := range surface {
		for _, v := range row {
			if !math.IsNaN(v) {
				pool = append(pool, v)
			}
		}
	}
	if len(pool) == 0 {
		return 0, fmt.Errorf("no finite window statistics")
	}

	switch mode {
	case ModeMedian:
		return mstats.Median(pool)
	case ModeMean:
		return mstats.Mean(pool)
	case ModeKDEMax, ModeKDEFirstMax:
		return densityThreshold(pool, mode, warn)
	default:
		return 0, fmt.Errorf("unknown threshold mode %q", mode)
	}
}

// densityThreshold evaluates the pooled density over the 1st to 99th
// percentile span and returns the position of either its global maximum or
// its first prominent local maximum.
func densityThreshold(pool []float64, mode ThresholdMode, warn *diag.Collector) (float64, error) {
	k, err := kde.New(pool)
	if err != nil {
		return 0, err
	}
	lo, err := mstats.Percentile(pool, 1)
	if err != nil {
		return 0, err
	}
	hi, err := mstats.Percentile(pool, 99)
	if err != nil {
		return 0, err
	}
	xs := kde.Linspace(lo, hi, 100)
	ys := k.Evaluate(xs)

	if mode == ModeKDEFirstMax {
		peak := rollstat.NanMax(ys)
		for _, i := range kde.LocalMaxima(ys) {
			if ys[i] > peakProminence*peak {
				return xs[i], nil
			}
		}
		warn.Warnf("optimise", "pooled density has no prominent interior maximum; using its global maximum")
	}

	best := 0
	for i := range ys {
		if ys[i] > ys[best] {
			best = i
		}
	}
	return xs[best], nil
}

// selectCell picks the widest window whose scaled dispersion and amplitude
// both sit under the thresholds, breaking ties toward the earliest centre
// among cells within one point of that width.
func selectCell(msmeans, msstds [][]float64, meanThr, stdThr float64, minPoints int) (centre, width int, found bool) {
	optW := -1
	for r := range msmeans {
		for c := range msmeans[r] {
			if qualifies(msmeans[r][c], msstds[r][c], meanThr, stdThr) {
				if w := minPoints + r; w > optW {
					optW = w
				}
			}
		}
	}
	if optW < 0 {
		return 0, 0, false
	}

	optC := -1
	for r := range msmeans {
		w := minPoints + r
		if w < optW-1 || w > optW+1 {
			continue
		}
		for c := range msmeans[r] {
			if qualifies(msmeans[r][c], msstds[r][c], meanThr, stdThr) && (optC < 0 || c < optC) {
				optC = c
			}
		}
	}
	return optC, optW, true
}

func qualifies(mean, std, meanThr, stdThr float64) bool {
	return !math.IsNaN(mean) && !math.IsNaN(std) &&
		std < stdThr-thresholdMargin && mean < meanThr-thresholdMargin
}
