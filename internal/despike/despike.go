// Package despike removes instrumental artifacts from raw traces: local
// outlier spikes and samples that violate the fastest physically possible
// exponential washout decay. Flagged points are replaced with the mean of
// their immediate neighbours in a single pass.
package despike

import (
	"fmt"
	"math"

	"github.com/banshee-data/ablation.report/internal/rollstat"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// Options controls the two despiking passes. The spike filter runs before
// the decay filter: the decay pass assumes isolated spikes are already
// gone.
type Options struct {
	SpikeFilter bool
	Window      int     // rolling window for the spike filter
	NSigma      float64 // spike threshold in count-statistics sigmas

	DecayFilter bool
	Exponent    float64 // decay exponent k (negative); required by the decay pass
	TimeStep    float64 // sample spacing; zero means derive from the trace
}

// DefaultOptions returns the conventional despiking configuration.
func DefaultOptions() Options {
	return Options{
		SpikeFilter: true,
		Window:      3,
		NSigma:      12,
		DecayFilter: false,
	}
}

// Despike runs the configured passes over the trace's working stage and
// stores the result as StageDespiked, which becomes the working stage.
func Despike(tr *trace.Trace, opts Options) error {
	if opts.DecayFilter {
		if opts.Exponent >= 0 {
			return fmt.Errorf("despike: decay exponent must be negative, got %v", opts.Exponent)
		}
		if opts.TimeStep == 0 {
			opts.TimeStep = tr.TimeStep()
		}
		if math.IsNaN(opts.TimeStep) || opts.TimeStep <= 0 {
			return fmt.Errorf("despike: cannot derive a positive time step")
		}
	}

	src := tr.ActiveFrame()
	out := make(trace.Frame, len(src))
	for a, v := range src {
		d := v
		if opts.SpikeFilter {
			d = SpikeSeries(d, opts.Window, opts.NSigma)
		}
		if opts.DecayFilter {
			d = DecaySeries(d, opts.Exponent, opts.TimeStep)
		}
		if !opts.SpikeFilter && !opts.DecayFilter {
			cp := make([]float64, len(v))
			copy(cp, v)
			d = cp
		}
		out[a] = d
	}
	if err := tr.SetFrame(trace.StageDespiked, out); err != nil {
		return err
	}
	return tr.SetActive(trace.StageDespiked)
}

// SpikeSeries removes local outliers from one series. The rolling standard
// deviation is derived from count statistics (std = sqrt(mean), appropriate
// for count-based intensity data); samples above mean + nsigma*std are
// replaced with the mean of their immediate neighbours. Boundary samples
// without usable neighbours are left in place.
func SpikeSeries(v []float64, win int, nsigma float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)

	rmean := rollstat.MeanPadNaN(v, win)
	for i := range v {
		rstd := math.Sqrt(rmean[i])
		if math.IsNaN(rmean[i]) || !(v[i] > rmean[i]+nsigma*rstd) {
			continue
		}
		if r, ok := neighbourMean(v, i); ok {
			out[i] = r
		}
	}
	return out
}

// DecaySeries removes samples whose own following decay is physically
// impossible: sample i is flagged when v[i]*exp(k*dt) still exceeds
// v[i+1], i.e. the trace fell faster than the washout decay allows, so
// v[i] must be spurious. Replacement is a single pass over the original
// values; no iteration to a fixed point.
func DecaySeries(v []float64, exponent, tstep float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)

	decay := math.Exp(exponent * tstep)
	for i := 0; i+1 < len(v); i++ {
		if math.IsNaN(v[i]) || math.IsNaN(v[i+1]) {
			continue
		}
		if v[i]*decay <= v[i+1] {
			continue
		}
		if r, ok := neighbourMean(v, i); ok {
			out[i] = r
		}
	}
	return out
}

// neighbourMean averages the usable immediate neighbours of position i.
// Returns false when neither neighbour exists or both are NaN, in which
// case the spike stays (documented limitation, not an error).
func neighbourMean(v []float64, i int) (float64, bool) {
	var sum float64
	var n int
	if i > 0 && !math.IsNaN(v[i-1]) {
		sum += v[i-1]
		n++
	}
	if i+1 < len(v) && !math.IsNaN(v[i+1]) {
		sum += v[i+1]
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
