// Command ablation-scan runs the full segmentation pipeline over a
// synthetic two-analyte scan and prints a JSON summary. It exists to
// demonstrate the pipeline end to end without instrument data: despiking,
// region detection, filter generation and signal window optimisation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/google/uuid"

	"github.com/banshee-data/ablation.report/internal/autorange"
	"github.com/banshee-data/ablation.report/internal/cluster"
	"github.com/banshee-data/ablation.report/internal/config"
	"github.com/banshee-data/ablation.report/internal/despike"
	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/filters"
	"github.com/banshee-data/ablation.report/internal/optimise"
	"github.com/banshee-data/ablation.report/internal/trace"
	"github.com/banshee-data/ablation.report/internal/version"
)

// summary is the JSON report printed on success.
type summary struct {
	TraceID      uuid.UUID           `json:"trace_id"`
	Samples      int                 `json:"samples"`
	Analytes     []string            `json:"analytes"`
	Warnings     []string            `json:"warnings,omitempty"`
	SegmentCount int                 `json:"segment_count"`
	SignalRanges []trace.Range       `json:"signal_ranges"`
	BkgRanges    []trace.Range       `json:"background_ranges"`
	FilterKeys   map[string]string   `json:"filter_keys"`
	Selection    *selectionSummary   `json:"optimised_selection,omitempty"`
	Segments     []trace.SegmentStat `json:"segment_stats"`
}

type selectionSummary struct {
	Lims   [2]int `json:"lims"`
	Centre int    `json:"centre"`
	Width  int    `json:"width"`
}

// logistic is a smooth step from 0 to 1 centred at c with scale w.
func logistic(x, c, w float64) float64 {
	return 1 / (1 + math.Exp(-(x-c)/w))
}

// syntheticScan builds a three-plateau scan: a calcium channel carrying
// the ablation signal, and an aluminium channel that tracks it weakly
// plus a contaminated stretch inside the second plateau. A few isolated
// spikes are injected so the despiker has work to do.
func syntheticScan(n int, dt float64, seed int64) (*trace.Trace, error) {
	rng := rand.New(rand.NewSource(seed))

	time := make([]float64, n)
	ca := make([]float64, n)
	al := make([]float64, n)

	centres := []float64{0.15, 0.3, 0.45, 0.6, 0.75, 0.9}
	for i := range time {
		x := float64(i)
		time[i] = x * dt

		// Plateau envelope: alternating up and down steps.
		env := 0.0
		for j, c := range centres {
			step := logistic(x, c*float64(n), 2)
			if j%2 == 0 {
				env += step
			} else {
				env -= step
			}
		}

		caLevel := 200 + 8e4*env
		ca[i] = caLevel + rng.NormFloat64()*math.Sqrt(math.Abs(caLevel))

		alLevel := 50 + 0.01*caLevel
		// Contamination in the second plateau tracks calcium closely.
		if x > 0.47*float64(n) && x < 0.55*float64(n) {
			alLevel += 0.05 * caLevel
		}
		al[i] = alLevel + rng.NormFloat64()*math.Sqrt(math.Abs(alLevel))
	}

	// Isolated spikes.
	for _, i := range []int{int(0.2 * float64(n)), int(0.65 * float64(n))} {
		ca[i] *= 30
	}

	return trace.New(time, trace.Frame{"Ca43": ca, "Al27": al})
}

func run(cfg *config.TuningConfig, n int, dt float64, seed int64, alThreshold float64) (*summary, error) {
	tr, err := syntheticScan(n, dt, seed)
	if err != nil {
		return nil, fmt.Errorf("building scan: %w", err)
	}
	warn := diag.NewCollector()

	if err := despike.Despike(tr, despike.Options{
		SpikeFilter: cfg.GetSpikeFilter(),
		Window:      cfg.GetSpikeWindow(),
		NSigma:      cfg.GetSpikeNSigma(),
		DecayFilter: cfg.GetDecayFilter(),
		Exponent:    cfg.GetDecayExponent(),
	}); err != nil {
		return nil, fmt.Errorf("despiking: %w", err)
	}

	if err := autorange.Run(tr, autorange.Options{
		Analyte:        cfg.GetTargetAnalyte(),
		GradWindow:     cfg.GetGradWindow(),
		Window:         cfg.GetTransitionWindow(),
		FineWindow:     cfg.GetFineWindow(),
		Conf:           cfg.GetTransitionConf(),
		TransMult:      cfg.GetTransMult(),
		SafetyFraction: cfg.GetSafetyFraction(),
	}, warn); err != nil {
		return nil, fmt.Errorf("identifying regions: %w", err)
	}
	if err := tr.Separate(); err != nil {
		return nil, fmt.Errorf("separating stages: %w", err)
	}

	reg := filters.New(tr.Len(), tr.Analytes)
	if err := filters.Threshold(tr, reg, "Al27", alThreshold, filters.KeepBelow, filters.NoFilter()); err != nil {
		return nil, fmt.Errorf("threshold filter: %w", err)
	}
	if err := filters.Correlation(tr, reg, "Al27", "Ca43", filters.CorrelationOptions{
		Window:     cfg.GetCorrelationWindow(),
		RThreshold: cfg.GetRThreshold(),
		PThreshold: cfg.GetPThreshold(),
	}); err != nil {
		return nil, fmt.Errorf("correlation filter: %w", err)
	}
	d := cluster.NewDBSCAN(cfg.GetDBSCANEps(), cfg.GetDBSCANMinPoints())
	if err := filters.Clustering(tr, reg, []string{"Ca43"}, d, filters.ClusteringOptions{
		Normalise:      true,
		TargetClusters: 2,
		MaxIter:        cfg.GetClusterTuneIters(),
	}, warn); err != nil {
		return nil, fmt.Errorf("clustering filter: %w", err)
	}
	// Cluster filters start enabled everywhere and would AND down to
	// almost nothing. Register them for inspection but keep them out of
	// the combined key.
	if err := reg.Off("_cluster-", nil); err != nil {
		return nil, fmt.Errorf("disabling cluster filters: %w", err)
	}

	target := cfg.GetTargetAnalyte()
	selection, err := reg.Make(target)
	if err != nil {
		return nil, fmt.Errorf("combining filters for %s: %w", target, err)
	}

	sigFrame, ok := tr.Frame(trace.StageSignal)
	if !ok {
		return nil, fmt.Errorf("signal stage missing")
	}
	segStats, err := tr.SegmentStats(sigFrame, target, selection)
	if err != nil {
		return nil, fmt.Errorf("segment statistics: %w", err)
	}

	// The optimiser searches the signal-focused stage, where off-signal
	// samples are NaN and drop out of the window grids.
	if err := tr.SetActive(trace.StageSignal); err != nil {
		return nil, fmt.Errorf("switching to signal stage: %w", err)
	}
	opt, err := optimise.Run(tr, optimise.Options{
		Analytes:  []string{target},
		MinPoints: cfg.GetOptimiseMinPoints(),
		Mode:      optimise.ThresholdMode(cfg.GetThresholdMode()),
	}, warn)
	if err != nil {
		return nil, fmt.Errorf("optimising signal window: %w", err)
	}

	log.Printf("registered filters:\n%s", reg.Info())
	log.Printf("filter states:\n%s", reg)

	s := &summary{
		TraceID:      tr.ID,
		Samples:      tr.Len(),
		Analytes:     tr.Analytes,
		SegmentCount: tr.SegmentCount,
		SignalRanges: tr.Regions.SignalRanges,
		BkgRanges:    tr.Regions.BackgroundRanges,
		FilterKeys:   reg.KeyDict(),
		Segments:     segStats,
	}
	if !opt.Empty() {
		s.Selection = &selectionSummary{Lims: opt.Lims, Centre: opt.Centre, Width: opt.Width}
	}
	for _, w := range warn.Warnings() {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s, nil
}

func main() {
	configPath := flag.String("config", "", "path to a tuning config JSON file (defaults apply if empty)")
	samples := flag.Int("samples", 600, "number of samples in the synthetic scan")
	timestep := flag.Float64("timestep", 0.2, "sample spacing in seconds")
	seed := flag.Int64("seed", 1, "random seed for the synthetic scan")
	alThreshold := flag.Float64("al-threshold", 2500, "aluminium contamination cutoff in counts")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ablation-scan %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	if *samples < 100 {
		log.Fatalf("need at least 100 samples, got %d", *samples)
	}

	s, err := run(cfg, *samples, *timestep, *seed, *alThreshold)
	if err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Fatalf("encoding summary: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
