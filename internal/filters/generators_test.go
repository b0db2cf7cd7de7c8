package filters

import (
	"math"
	"testing"

	"github.com/banshee-data/ablation.report/internal/cluster"
	"github.com/banshee-data/ablation.report/internal/diag"
	"github.com/banshee-data/ablation.report/internal/trace"
)

// twoLevelTrace builds a single-analyte trace holding value lo for the
// first half and hi for the second, with one NaN sample at index nanAt
// (skipped when negative).
func twoLevelTrace(t *testing.T, n int, lo, hi float64, nanAt int) *trace.Trace {
	t.Helper()
	tm := make([]float64, n)
	v := make([]float64, n)
	for i := range tm {
		tm[i] = float64(i)
		if i < n/2 {
			v[i] = lo
		} else {
			v[i] = hi
		}
		// deterministic jitter so density estimates see spread
		v[i] += 0.02 * v[i] * math.Sin(float64(i)*1.7)
	}
	if nanAt >= 0 {
		v[nanAt] = math.NaN()
	}
	tr, err := trace.New(tm, trace.Frame{"Ca43": v})
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	return tr
}

func TestThreshold_AboveAndBelow(t *testing.T) {
	tr := twoLevelTrace(t, 40, 1, 100, -1)
	r := New(tr.Len(), tr.Analytes)

	if err := Threshold(tr, r, "Ca43", 50, KeepAbove, NoFilter()); err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if err := Threshold(tr, r, "Ca43", 50, KeepBelow, NoFilter()); err != nil {
		t.Fatalf("Threshold: %v", err)
	}

	above, ok := r.Lookup("Ca43_thresh_above")
	if !ok {
		t.Fatal("missing Ca43_thresh_above")
	}
	below, ok := r.Lookup("Ca43_thresh_below")
	if !ok {
		t.Fatal("missing Ca43_thresh_below")
	}
	v := tr.ActiveFrame()["Ca43"]
	for i := range v {
		if above.Mask[i] != (v[i] >= 50) {
			t.Fatalf("above mask wrong at %d", i)
		}
		if below.Mask[i] != (v[i] <= 50) {
			t.Fatalf("below mask wrong at %d", i)
		}
	}
}

func TestThreshold_UnknownAnalyte(t *testing.T) {
	tr := twoLevelTrace(t, 10, 1, 100, -1)
	r := New(tr.Len(), tr.Analytes)
	if err := Threshold(tr, r, "Sr88", 50, KeepAbove, NoFilter()); err == nil {
		t.Error("expected error for unknown analyte")
	}
}

func TestDistribution_BimodalPartition(t *testing.T) {
	tr := twoLevelTrace(t, 100, 1, 10, 7)
	r := New(tr.Len(), tr.Analytes)

	if err := Distribution(tr, r, "Ca43", DistributionOptions{Selector: NoFilter()}); err != nil {
		t.Fatalf("Distribution: %v", err)
	}

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 distribution filters, got %v", names)
	}
	low, _ := r.Lookup("Ca43_distribution_0")
	high, _ := r.Lookup("Ca43_distribution_1")
	if low == nil || high == nil {
		t.Fatalf("unexpected filter names %v", names)
	}

	v := tr.ActiveFrame()["Ca43"]
	for i := range v {
		if math.IsNaN(v[i]) {
			if low.Mask[i] || high.Mask[i] {
				t.Fatalf("missing sample %d must be in no bin", i)
			}
			continue
		}
		if low.Mask[i] == high.Mask[i] {
			t.Fatalf("sample %d must be in exactly one bin", i)
		}
	}

	// The bins must split along the value modes.
	if !low.Mask[3] || high.Mask[3] {
		t.Error("low-mode sample landed in the wrong bin")
	}
	if low.Mask[90] || !high.Mask[90] {
		t.Error("high-mode sample landed in the wrong bin")
	}
}

func TestDistribution_SingleModeFallback(t *testing.T) {
	n := 60
	tm := make([]float64, n)
	v := make([]float64, n)
	for i := range tm {
		tm[i] = float64(i)
		v[i] = 5 // constant: density estimation cannot split this
	}
	v[11] = math.NaN()
	tr, err := trace.New(tm, trace.Frame{"Ca43": v})
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	r := New(tr.Len(), tr.Analytes)

	if err := Distribution(tr, r, "Ca43", DistributionOptions{Selector: NoFilter()}); err != nil {
		t.Fatalf("Distribution: %v", err)
	}

	f, ok := r.Lookup("Ca43_distribution_failed")
	if !ok {
		t.Fatalf("expected fallback filter, got %v", r.Names())
	}
	v = tr.ActiveFrame()["Ca43"]
	for i := range v {
		if f.Mask[i] != !math.IsNaN(v[i]) {
			t.Fatalf("fallback mask must keep exactly the non-missing samples, wrong at %d", i)
		}
	}
}

func TestClustering_KMeansPartition(t *testing.T) {
	tr := twoLevelTrace(t, 60, 1, 100, -1)
	r := New(tr.Len(), tr.Analytes)

	err := Clustering(tr, r, []string{"Ca43"}, cluster.NewKMeans(2),
		ClusteringOptions{Selector: NoFilter()}, diag.NewQuietCollector())
	if err != nil {
		t.Fatalf("Clustering: %v", err)
	}

	low, ok := r.Lookup("Ca43_cluster-kmeans_1")
	if !ok {
		t.Fatalf("missing cluster filter, have %v", r.Names())
	}
	high, ok := r.Lookup("Ca43_cluster-kmeans_2")
	if !ok {
		t.Fatalf("missing cluster filter, have %v", r.Names())
	}
	for i := 0; i < tr.Len(); i++ {
		want := i < tr.Len()/2
		if low.Mask[i] != want || high.Mask[i] == want {
			t.Fatalf("sample %d assigned to the wrong cluster", i)
		}
	}
}

func TestClustering_DBSCANNames(t *testing.T) {
	tr := twoLevelTrace(t, 60, 1, 100, -1)
	r := New(tr.Len(), tr.Analytes)

	err := Clustering(tr, r, []string{"Ca43"}, cluster.NewDBSCAN(0.5, 3),
		ClusteringOptions{Normalise: true, Selector: NoFilter()}, diag.NewQuietCollector())
	if err != nil {
		t.Fatalf("Clustering: %v", err)
	}

	if _, ok := r.Lookup("Ca43_cluster-DBSCAN_1"); !ok {
		t.Errorf("missing cluster 1 filter, have %v", r.Names())
	}
	if _, ok := r.Lookup("Ca43_cluster-DBSCAN_core"); !ok {
		t.Errorf("missing core filter, have %v", r.Names())
	}
}

func TestClustering_MasksRespectSelection(t *testing.T) {
	tr := twoLevelTrace(t, 60, 1, 100, -1)
	r := New(tr.Len(), tr.Analytes)

	// Pre-filter excluding the first ten samples.
	pre := make([]bool, tr.Len())
	for i := range pre {
		pre[i] = i >= 10
	}
	if err := r.Add("pre", pre, "", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := Clustering(tr, r, []string{"Ca43"}, cluster.NewKMeans(2),
		ClusteringOptions{Selector: Expr("pre")}, diag.NewQuietCollector())
	if err != nil {
		t.Fatalf("Clustering: %v", err)
	}

	for _, name := range []string{"Ca43_cluster-kmeans_1", "Ca43_cluster-kmeans_2"} {
		f, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		for i := 0; i < 10; i++ {
			if f.Mask[i] {
				t.Fatalf("%s includes excluded sample %d", name, i)
			}
		}
	}
}

func TestCorrelation_FlagsCovaryingWindows(t *testing.T) {
	n := 100
	tm := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range tm {
		tm[i] = float64(i)
		x[i] = math.Sin(float64(i)*0.9)*3 + 10
		if i < n/2 {
			y[i] = 5 // flat, uncorrelated with x
		} else {
			y[i] = 2*x[i] + 1 // perfectly correlated
		}
	}
	tr, err := trace.New(tm, trace.Frame{"Al27": x, "Ca43": y})
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	r := New(tr.Len(), tr.Analytes)

	if err := Correlation(tr, r, "Al27", "Ca43", CorrelationOptions{Selector: NoFilter()}); err != nil {
		t.Fatalf("Correlation: %v", err)
	}

	f, ok := r.Lookup("Al27-Ca43_corr")
	if !ok {
		t.Fatalf("missing correlation filter, have %v", r.Names())
	}
	if !f.Mask[25] {
		t.Error("uncorrelated sample should be kept")
	}
	if f.Mask[75] {
		t.Error("correlated sample should be dropped")
	}

	// Asymmetric by construction: only the y analyte starts filtered.
	xEnabled, _ := r.Enabled("Al27")
	if len(xEnabled) != 0 {
		t.Errorf("expected no filters enabled for Al27, got %v", xEnabled)
	}
	yEnabled, _ := r.Enabled("Ca43")
	if len(yEnabled) != 1 || yEnabled[0] != "Al27-Ca43_corr" {
		t.Errorf("expected correlation filter enabled for Ca43, got %v", yEnabled)
	}
}
