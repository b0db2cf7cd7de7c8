package despike

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/fit"
	"github.com/banshee-data/ablation.report/internal/rollstat"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// DecayEstimate is the result of fitting exp(k*t) to pooled washout tails.
type DecayEstimate struct {
	K        float64 // fitted exponent
	SigmaK   float64 // standard error of K
	Working  float64 // K - nsd*SigmaK, the conservative faster-decay value
	RSquared float64 // fit quality against all pooled points
	Tails    int     // number of washout tails used
}

// WashoutTails extracts the target analyte's values inside every second
// transition range of a segmented trace. Odd-indexed transitions follow a
// signal region, so they contain the washout decay.
func WashoutTails(tr *trace.Trace, analyte string) ([][]float64, error) {
	if tr.Regions == nil {
		return nil, fmt.Errorf("despike: regions not identified; run autorange first")
	}
	v, ok := tr.ActiveFrame()[analyte]
	if !ok {
		return nil, fmt.Errorf("despike: unknown analyte %s", analyte)
	}
	var out [][]float64
	for i, r := range tr.Regions.TransitionRanges {
		if i%2 == 0 {
			continue
		}
		var tail []float64
		for j, t := range tr.Time {
			if t > r.Start && t < r.End {
				tail = append(tail, v[j])
			}
		}
		if len(tail) > 0 {
			out = append(out, tail)
		}
	}
	return out, nil
}

// EstimateDecayCoefficient derives the working decay exponent from washout
// tails of reference-standard measurements. Each tail is normalised to
// [0, 1] and its pre-decay plateau trimmed using a first-derivative
// threshold (trimLim; zero means half the largest step). The tails are
// pooled on a shared time base, reduced to their per-time minimum envelope,
// and exp(k*t) is fit to the envelope. The working exponent is
// k - nsdBelow*sigma_k, biased toward faster decay so the filter never
// flags real washout behaviour.
func EstimateDecayCoefficient(washouts [][]float64, tstep, nsdBelow, trimLim float64, warn *diag.Collector) (DecayEstimate, error) {
	if tstep <= 0 {
		return DecayEstimate{}, fmt.Errorf("despike: time step must be positive, got %v", tstep)
	}

	var times, pooled []float64
	tails := 0
	for i, w := range washouts {
		tail := prepareTail(w, trimLim)
		if len(tail) < 3 {
			warn.Warnf("despike", "washout %d too short after trimming, skipped", i)
			continue
		}
		tails++
		for j, v := range tail {
			times = append(times, float64(j)*tstep)
			pooled = append(pooled, v)
		}
	}
	if tails == 0 {
		return DecayEstimate{}, fmt.Errorf("despike: no usable washout tails")
	}

	// Minimum envelope over the pooled, time-binned points.
	envT, envV := minEnvelope(times, pooled)

	k, sigmaK, err := fit.ExpDecay(envT, envV)
	if err != nil {
		return DecayEstimate{}, fmt.Errorf("despike: decay fit: %w", err)
	}

	pred := make([]float64, len(times))
	for i, t := range times {
		pred[i] = fit.ExpValue(t, k)
	}

	return DecayEstimate{
		K:        k,
		SigmaK:   sigmaK,
		Working:  k - nsdBelow*sigmaK,
		RSquared: fit.RSquared(pooled, pred),
		Tails:    tails,
	}, nil
}

// prepareTail normalises a washout tail to [0, 1], trims the pre-decay
// plateau, and re-normalises the remainder.
func prepareTail(w []float64, trimLim float64) []float64 {
	norm := normalise(w)
	if norm == nil {
		return nil
	}
	sm := rollstat.Smooth(norm, 3)
	if len(sm) > 1 {
		sm[0] = sm[1]
	}
	trim := findTrim(sm, trimLim) + 2
	if trim < 0 || trim >= len(norm) {
		return nil
	}
	return normalise(norm[trim:])
}

// findTrim locates the end of the first run of steep first-derivative
// steps, marking where the plateau gives way to decay.
func findTrim(a []float64, lim float64) int {
	if len(a) < 2 {
		return -1
	}
	diff := make([]float64, len(a))
	for i := 0; i+1 < len(a); i++ {
		diff[i] = a[i] - a[i+1]
	}
	diff[len(a)-1] = a[len(a)-1]

	if lim == 0 {
		lim = 0.5 * rollstat.NanMax(diff)
	}
	steep := make([]bool, len(diff))
	for i, d := range diff {
		steep[i] = d >= lim
	}
	for i := 0; i+1 < len(steep); i++ {
		if steep[i] != steep[i+1] {
			return i
		}
	}
	return -1
}

func normalise(a []float64) []float64 {
	lo := rollstat.NanMin(a)
	if math.IsNaN(lo) {
		return nil
	}
	span := rollstat.NanMax(a) - lo
	if span == 0 {
		return nil
	}
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = (v - lo) / span
	}
	return out
}

// minEnvelope reduces pooled (time, value) points to the minimum value at
// each distinct time, ordered by time.
func minEnvelope(times, values []float64) ([]float64, []float64) {
	byTime := make(map[float64]float64)
	for i, t := range times {
		v, ok := byTime[t]
		if !ok || values[i] < v {
			byTime[t] = values[i]
		}
	}
	ts := make([]float64, 0, len(byTime))
	for t := range byTime {
		ts = append(ts, t)
	}
	sort.Float64s(ts)
	vs := make([]float64, len(ts))
	for i, t := range ts {
		vs[i] = byTime[t]
	}
	return ts, vs
}
