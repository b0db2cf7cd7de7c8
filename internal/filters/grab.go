package filters

import "fmt"

// Selector names which filter state Grab should apply. The four forms
// mirror how downstream consumers ask for masks: no filtering at all, an
// explicit expression, a per-analyte expression map, or the current switch
// state.
type Selector struct {
	kind   selectorKind
	expr   string
	byName map[string]string
}

type selectorKind int

const (
	selNone selectorKind = iota
	selExpr
	selPerAnalyte
	selCurrent
)

// NoFilter selects an all-True mask regardless of registry state.
func NoFilter() Selector { return Selector{kind: selNone} }

// Expr selects the mask described by an explicit logical expression,
// ignoring the switch table. An empty expression behaves like NoFilter.
func Expr(expression string) Selector {
	return Selector{kind: selExpr, expr: expression}
}

// PerAnalyte selects a different expression per analyte. Grab fails if the
// requested analyte has no entry.
func PerAnalyte(exprs map[string]string) Selector {
	return Selector{kind: selPerAnalyte, byName: exprs}
}

// Current selects the combination of all filters currently switched on for
// the requested analyte.
func Current() Selector { return Selector{kind: selCurrent} }

// Grab is the uniform mask access point used by every consumer and filter
// generator.
func (r *Registry) Grab(sel Selector, analyte string) ([]bool, error) {
	switch sel.kind {
	case selNone:
		return allTrue(r.size), nil
	case selExpr:
		return r.MakeFromKey(sel.expr)
	case selPerAnalyte:
		expr, ok := sel.byName[analyte]
		if !ok {
			return nil, fmt.Errorf("filters: no expression for analyte %q: %w", analyte, ErrUnknownAnalyte)
		}
		return r.MakeFromKey(expr)
	case selCurrent:
		return r.Make(analyte)
	default:
		return nil, fmt.Errorf("filters: unrecognised selector")
	}
}
