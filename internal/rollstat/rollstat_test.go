package rollstat

import (
	"math"
	"testing"
)

func TestOddWindow(t *testing.T) {
	cases := []struct{ in, want int }{
		{11, 11}, {10, 9}, {2, 1}, {1, 1}, {0, 1},
	}
	for _, c := range cases {
		if got := OddWindow(c.in); got != c.want {
			t.Errorf("OddWindow(%d): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestSmooth_ZeroPadsEdges(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7}
	out := Smooth(a, 3)

	if out[0] != 0 || out[len(out)-1] != 0 {
		t.Errorf("expected zero-padded edges, got %v", out)
	}
	if out[1] != 2 || out[3] != 4 {
		t.Errorf("expected window means 2 and 4, got %v and %v", out[1], out[3])
	}
}

func TestSmooth_SkipsGaps(t *testing.T) {
	a := []float64{1, math.NaN(), 3, 4, 5}
	out := Smooth(a, 3)

	// Window at position 1 is {1, NaN, 3}: mean of the usable samples.
	if out[1] != 2 {
		t.Errorf("expected gap-tolerant mean 2, got %v", out[1])
	}
}

func TestMeanPadNaN_EdgesAreNaN(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	out := MeanPadNaN(a, 3)

	if !math.IsNaN(out[0]) || !math.IsNaN(out[4]) {
		t.Errorf("expected NaN edges, got %v", out)
	}
	if out[2] != 3 {
		t.Errorf("expected centre mean 3, got %v", out[2])
	}
}

func TestSlope_LinearRamp(t *testing.T) {
	// A pure ramp has slope 2 everywhere a full window fits.
	a := make([]float64, 21)
	for i := range a {
		a[i] = 2 * float64(i)
	}
	out := Slope(a, 5)

	for i := 2; i < len(a)-2; i++ {
		if math.Abs(out[i]-2) > 1e-9 {
			t.Fatalf("position %d: expected slope 2, got %v", i, out[i])
		}
	}
	if out[0] != 0 || out[len(a)-1] != 0 {
		t.Errorf("expected zero-padded edges, got %v %v", out[0], out[len(a)-1])
	}
}

func TestSlope_EvenWindowDecrements(t *testing.T) {
	a := []float64{0, 1, 2, 3, 4, 5, 6}
	odd := Slope(a, 5)
	even := Slope(a, 6)

	for i := range odd {
		if odd[i] != even[i] {
			t.Fatalf("position %d: even window should behave as width 5 (%v != %v)", i, even[i], odd[i])
		}
	}
}

func TestWindowGrid_Shapes(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	g, err := WindowGrid(a, 5)
	if err != nil {
		t.Fatalf("WindowGrid: %v", err)
	}
	if g.Widths != 5 {
		t.Errorf("expected 5 width rows, got %d", g.Widths)
	}
	if len(g.Mean) != g.Widths || len(g.Std) != g.Widths {
		t.Fatalf("surface row count mismatch")
	}
	for r := range g.Mean {
		if len(g.Mean[r]) != len(a) {
			t.Fatalf("row %d: expected %d columns, got %d", r, len(a), len(g.Mean[r]))
		}
	}

	// Width 5 centred at position 2 covers samples 1..5.
	if want := 3.0; g.Mean[0][2] != want {
		t.Errorf("expected mean %v at row 0 col 2, got %v", want, g.Mean[0][2])
	}
	// Cells whose window leaves the data are NaN.
	if !math.IsNaN(g.Mean[0][0]) || !math.IsNaN(g.Mean[0][len(a)-1]) {
		t.Errorf("expected NaN edge cells")
	}
}

func TestWindowGrid_SkipsNaN(t *testing.T) {
	a := []float64{math.NaN(), 1, 2, 3, 4, 5, 6, 7, math.NaN()}
	g, err := WindowGrid(a, 5)
	if err != nil {
		t.Fatalf("WindowGrid: %v", err)
	}
	// Seven valid samples: widths 5 and 6.
	if g.Widths != 2 {
		t.Errorf("expected 2 width rows, got %d", g.Widths)
	}
	// NaN columns are never populated.
	for r := range g.Mean {
		if !math.IsNaN(g.Mean[r][0]) || !math.IsNaN(g.Mean[r][8]) {
			t.Errorf("row %d: expected NaN at gap columns", r)
		}
	}
}

func TestWindowGrid_TooFewPoints(t *testing.T) {
	if _, err := WindowGrid([]float64{1, 2, 3}, 5); err == nil {
		t.Error("expected error for too few valid samples")
	}
	if _, err := WindowGrid([]float64{1, 2, 3}, 1); err == nil {
		t.Error("expected error for min points below 2")
	}
}

func TestNanHelpers(t *testing.T) {
	a := []float64{1, math.NaN(), 3}
	if got := NanMean(a); got != 2 {
		t.Errorf("NanMean: expected 2, got %v", got)
	}
	if got := NanMin(a); got != 1 {
		t.Errorf("NanMin: expected 1, got %v", got)
	}
	if got := NanMax(a); got != 3 {
		t.Errorf("NanMax: expected 3, got %v", got)
	}
	if got := NanStd(a); got != 1 {
		t.Errorf("NanStd: expected 1, got %v", got)
	}
	if !math.IsNaN(NanMean([]float64{math.NaN()})) {
		t.Error("NanMean of all-NaN should be NaN")
	}
}
