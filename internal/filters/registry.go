// Package filters stores, combines and generates boolean sample filters
// for a trace. Each filter is a named mask over the trace's samples;
// per-analyte switches select which filters participate when masks are
// combined for downstream statistics.
package filters

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateFilter is returned when adding a filter whose name is
	// already registered.
	ErrDuplicateFilter = errors.New("filter name already registered")
	// ErrFilterNotFound is returned when removing or reading an unknown
	// filter.
	ErrFilterNotFound = errors.New("filter not found")
	// ErrInvalidExpression is returned for malformed or unresolvable
	// filter expressions.
	ErrInvalidExpression = errors.New("invalid filter expression")
	// ErrUnknownAnalyte is returned when a switch operation names an
	// analyte the registry was not built with.
	ErrUnknownAnalyte = errors.New("unknown analyte")
)

// Filter is one named boolean mask plus the metadata needed to audit or
// reproduce it.
type Filter struct {
	ID          uuid.UUID
	Name        string
	Mask        []bool
	Description string
	Params      map[string]interface{}
}

// Registry holds filters in insertion order together with a dense
// filter-by-analyte switch table. One registry belongs to exactly one
// trace; it is not safe for concurrent use.
type Registry struct {
	size     int
	analytes []string
	aindex   map[string]int

	filters  []*Filter
	findex   map[string]int
	switches [][]bool // switches[filter][analyte]

	keys map[string]string // analyte -> cached combined expression
}

// New creates an empty registry for a trace of the given length and
// analyte set.
func New(size int, analytes []string) *Registry {
	r := &Registry{
		size:     size,
		analytes: append([]string(nil), analytes...),
		aindex:   make(map[string]int, len(analytes)),
		findex:   make(map[string]int),
		keys:     make(map[string]string),
	}
	for i, a := range r.analytes {
		r.aindex[a] = i
	}
	return r
}

// Size returns the trace length the registry was built for.
func (r *Registry) Size() int { return r.size }

// Analytes returns the registry's analyte set.
func (r *Registry) Analytes() []string {
	return append([]string(nil), r.analytes...)
}

// Add registers a named mask. The filter starts enabled for every analyte.
func (r *Registry) Add(name string, mask []bool, description string, params map[string]interface{}) error {
	if _, ok := r.findex[name]; ok {
		return fmt.Errorf("filters: %q: %w", name, ErrDuplicateFilter)
	}
	if len(mask) != r.size {
		return fmt.Errorf("filters: mask %q has %d samples, trace has %d", name, len(mask), r.size)
	}
	f := &Filter{
		ID:          uuid.New(),
		Name:        name,
		Mask:        append([]bool(nil), mask...),
		Description: description,
		Params:      params,
	}
	row := make([]bool, len(r.analytes))
	for i := range row {
		row[i] = true
	}
	r.findex[name] = len(r.filters)
	r.filters = append(r.filters, f)
	r.switches = append(r.switches, row)
	return nil
}

// Remove deletes a filter, its metadata and its switch row.
func (r *Registry) Remove(name string) error {
	i, ok := r.findex[name]
	if !ok {
		return fmt.Errorf("filters: %q: %w", name, ErrFilterNotFound)
	}
	r.filters = append(r.filters[:i], r.filters[i+1:]...)
	r.switches = append(r.switches[:i], r.switches[i+1:]...)
	delete(r.findex, name)
	for j := i; j < len(r.filters); j++ {
		r.findex[r.filters[j].Name] = j
	}
	return nil
}

// Clear removes every filter and forgets all cached expressions.
func (r *Registry) Clear() {
	r.filters = nil
	r.switches = nil
	r.findex = make(map[string]int)
	r.keys = make(map[string]string)
}

// Clean removes filters that are disabled for every analyte.
func (r *Registry) Clean() {
	var stale []string
	for i, f := range r.filters {
		used := false
		for _, on := range r.switches[i] {
			if on {
				used = true
				break
			}
		}
		if !used {
			stale = append(stale, f.Name)
		}
	}
	for _, name := range stale {
		_ = r.Remove(name) // name came from the index
	}
}

// On enables every filter whose name contains substr for the given
// analytes. An empty substr matches all filters; nil analytes means all.
// Substring matching is deliberate so that filter families sharing a name
// prefix can be toggled together.
func (r *Registry) On(substr string, analytes []string) error {
	return r.toggle(substr, analytes, true)
}

// Off disables matching filters for the given analytes; see On.
func (r *Registry) Off(substr string, analytes []string) error {
	return r.toggle(substr, analytes, false)
}

func (r *Registry) toggle(substr string, analytes []string, state bool) error {
	cols, err := r.analyteColumns(analytes)
	if err != nil {
		return err
	}
	for i, f := range r.filters {
		if !strings.Contains(f.Name, substr) {
			continue
		}
		for _, c := range cols {
			r.switches[i][c] = state
		}
	}
	return nil
}

func (r *Registry) analyteColumns(analytes []string) ([]int, error) {
	if len(analytes) == 0 {
		cols := make([]int, len(r.analytes))
		for i := range cols {
			cols[i] = i
		}
		return cols, nil
	}
	cols := make([]int, 0, len(analytes))
	for _, a := range analytes {
		c, ok := r.aindex[a]
		if !ok {
			return nil, fmt.Errorf("filters: %q: %w", a, ErrUnknownAnalyte)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// Enabled returns the names of the filters currently switched on for the
// analyte, sorted.
func (r *Registry) Enabled(analyte string) ([]string, error) {
	c, ok := r.aindex[analyte]
	if !ok {
		return nil, fmt.Errorf("filters: %q: %w", analyte, ErrUnknownAnalyte)
	}
	var names []string
	for i, f := range r.filters {
		if r.switches[i][c] {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Make combines all filters enabled for the analyte with AND and caches
// the equivalent expression. No enabled filters yields an all-True mask.
func (r *Registry) Make(analyte string) ([]bool, error) {
	names, err := r.Enabled(analyte)
	if err != nil {
		return nil, err
	}
	key := strings.Join(names, " & ")
	r.keys[analyte] = key
	return r.MakeFromKey(key)
}

// MakeFromKey evaluates an explicit logical expression over filter names,
// independent of the switch table. An empty key yields an all-True mask.
func (r *Registry) MakeFromKey(key string) ([]bool, error) {
	if strings.TrimSpace(key) == "" {
		return allTrue(r.size), nil
	}
	node, err := parseExpression(key)
	if err != nil {
		return nil, err
	}
	return node.eval(r)
}

// Key returns the cached combined expression for the analyte, set by the
// last Make call.
func (r *Registry) Key(analyte string) string { return r.keys[analyte] }

// KeyDict returns the combined expression that Make would use right now
// for each analyte, without evaluating or caching anything.
func (r *Registry) KeyDict() map[string]string {
	out := make(map[string]string, len(r.analytes))
	for _, a := range r.analytes {
		names, _ := r.Enabled(a)
		out[a] = strings.Join(names, " & ")
	}
	return out
}

// Lookup returns the filter registered under name.
func (r *Registry) Lookup(name string) (*Filter, bool) {
	i, ok := r.findex[name]
	if !ok {
		return nil, false
	}
	return r.filters[i], true
}

// Names returns all filter names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.filters))
	for i, f := range r.filters {
		out[i] = f.Name
	}
	return out
}

// Components returns the masks of all filters whose names contain substr.
// With a non-empty analyte, only filters enabled for that analyte are
// included.
func (r *Registry) Components(substr, analyte string) (map[string][]bool, error) {
	c := -1
	if analyte != "" {
		i, ok := r.aindex[analyte]
		if !ok {
			return nil, fmt.Errorf("filters: %q: %w", analyte, ErrUnknownAnalyte)
		}
		c = i
	}
	out := make(map[string][]bool)
	for i, f := range r.filters {
		if !strings.Contains(f.Name, substr) {
			continue
		}
		if c >= 0 && !r.switches[i][c] {
			continue
		}
		out[f.Name] = append([]bool(nil), f.Mask...)
	}
	return out, nil
}

// Info returns a numbered list of registered filters and their
// descriptions, in insertion order.
func (r *Registry) Info() string {
	var b strings.Builder
	b.WriteString("Filter info:\n")
	for i, f := range r.filters {
		fmt.Fprintf(&b, "%d: %s: %s\n", i, f.Name, f.Description)
	}
	return b.String()
}

// String renders the switch table: one row per filter, one column per
// analyte, showing which filters are enabled where.
func (r *Registry) String() string {
	width := 6
	for _, f := range r.filters {
		if len(f.Name) > width {
			width = len(f.Name)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%*s", width+4, "")
	for _, a := range r.analytes {
		fmt.Fprintf(&b, "  %6s", a)
	}
	b.WriteByte('\n')
	for i, f := range r.filters {
		fmt.Fprintf(&b, "%d: %*s", i, width, f.Name)
		for c := range r.analytes {
			state := "-"
			if r.switches[i][c] {
				state = "on"
			}
			fmt.Fprintf(&b, "  %6s", state)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}
