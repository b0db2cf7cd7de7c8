package diag

import "testing"

func TestCollector_Accumulates(t *testing.T) {
	c := NewQuietCollector()
	if c.Len() != 0 {
		t.Errorf("expected empty collector, got %d", c.Len())
	}

	c.Warnf("autorange", "transition %d: %s", 2, "fit failed")
	c.Warnf("cluster", "eps tuning exhausted")

	ws := c.Warnings()
	if len(ws) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(ws))
	}
	if ws[0].Component != "autorange" {
		t.Errorf("expected component autorange, got %s", ws[0].Component)
	}
	if ws[0].Message != "transition 2: fit failed" {
		t.Errorf("unexpected message: %s", ws[0].Message)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.Warnf("x", "ignored")
	if c.Len() != 0 || c.Warnings() != nil {
		t.Error("nil collector should be inert")
	}
}
