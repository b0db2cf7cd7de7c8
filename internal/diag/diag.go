// Package diag accumulates warning-level diagnostics raised by best-effort
// processing steps (failed transition fits, exhausted tuning loops). Only
// data-shape and expression errors stop a workflow; everything else lands
// here.
package diag

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Warning is one recoverable condition reported during processing.
type Warning struct {
	Component string
	Message   string
	Time      time.Time
}

func (w Warning) String() string {
	return w.Component + ": " + w.Message
}

// Collector accumulates warnings and mirrors them to the standard logger.
type Collector struct {
	mu       sync.Mutex
	warnings []Warning
	quiet    bool
}

// NewCollector returns a collector that logs each warning as it arrives.
func NewCollector() *Collector {
	return &Collector{}
}

// NewQuietCollector returns a collector that accumulates without logging.
// Used by tests and batch callers that report at the end.
func NewQuietCollector() *Collector {
	return &Collector{quiet: true}
}

// Warnf records a warning for the named component.
func (c *Collector) Warnf(component, format string, args ...interface{}) {
	if c == nil {
		return
	}
	w := Warning{
		Component: component,
		Message:   fmt.Sprintf(format, args...),
		Time:      time.Now(),
	}
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	quiet := c.quiet
	c.mu.Unlock()

	if !quiet {
		log.Printf("warning: %s", w)
	}
}

// Warnings returns a copy of the accumulated warnings in arrival order.
func (c *Collector) Warnings() []Warning {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Len reports how many warnings have accumulated.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}
