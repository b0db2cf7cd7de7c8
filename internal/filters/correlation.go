package filters

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/ablation.report/internal/trace"
)

// CorrelationOptions tunes the correlation filter.
type CorrelationOptions struct {
	// Window is the rolling window width in samples. Forced odd; zero
	// means 15.
	Window int
	// RThreshold is the minimum |r| for a window to count as correlated.
	// Zero means 0.9.
	RThreshold float64
	// PThreshold is the maximum p-value for a window to count as
	// correlated. Zero means 0.05.
	PThreshold float64
	// Selector restricts which samples enter the rolling windows.
	Selector Selector
}

// Correlation registers a filter excluding windows where two analytes
// co-vary: samples whose surrounding window has |r| above RThreshold and a
// p-value below PThreshold are dropped, everything else kept. The filter
// is named <x>-<y>_corr and, being asymmetric, starts switched on only for
// the y analyte.
func Correlation(tr *trace.Trace, r *Registry, xAnalyte, yAnalyte string, opts CorrelationOptions) error {
	frame := tr.ActiveFrame()
	xv, ok := frame[xAnalyte]
	if !ok {
		return fmt.Errorf("filters: %q: %w", xAnalyte, ErrUnknownAnalyte)
	}
	yv, ok := frame[yAnalyte]
	if !ok {
		return fmt.Errorf("filters: %q: %w", yAnalyte, ErrUnknownAnalyte)
	}

	win := opts.Window
	if win == 0 {
		win = 15
	}
	if win%2 == 0 {
		win++
	}
	rt := opts.RThreshold
	if rt == 0 {
		rt = 0.9
	}
	pt := opts.PThreshold
	if pt == 0 {
		pt = 0.05
	}

	base, err := baseSelection(tr, r, opts.Selector, xAnalyte, yAnalyte)
	if err != nil {
		return err
	}

	n := len(xv)
	h := win / 2
	mask := make([]bool, n)
	for i := range mask {
		lo, hi := i-h, i+h+1
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		var xs, ys []float64
		for j := lo; j < hi; j++ {
			if base[j] && finite(xv[j]) && finite(yv[j]) {
				xs = append(xs, xv[j])
				ys = append(ys, yv[j])
			}
		}
		rho, p := windowCorrelation(xs, ys)
		mask[i] = !(math.Abs(rho) > rt && p < pt)
	}

	name := xAnalyte + "-" + yAnalyte + "_corr"
	info := xAnalyte + " vs. " + yAnalyte + " correlation filter."
	params := map[string]interface{}{
		"x_analyte":   xAnalyte,
		"y_analyte":   yAnalyte,
		"window":      win,
		"r_threshold": rt,
		"p_threshold": pt,
	}
	if err := r.Add(name, mask, info, params); err != nil {
		return err
	}
	if err := r.Off(name, nil); err != nil {
		return err
	}
	return r.On(name, []string{yAnalyte})
}

// windowCorrelation returns the Pearson correlation of the paired samples
// and its two-sided p-value. Too few pairs, or a degenerate window, yields
// r=0, p=1 so the sample is kept.
func windowCorrelation(xs, ys []float64) (rho, p float64) {
	if len(xs) < 3 {
		return 0, 1
	}
	rho = stat.Correlation(xs, ys, nil)
	if math.IsNaN(rho) {
		return 0, 1
	}
	df := float64(len(xs) - 2)
	if math.Abs(rho) >= 1 {
		return rho, 0
	}
	t := math.Abs(rho) * math.Sqrt(df/(1-rho*rho))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return rho, 2 * dist.Survival(t)
}
