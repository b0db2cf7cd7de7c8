package filters

import (
	"fmt"
	"strings"
)

// Filter expressions combine named masks with '&', '|', '~' and
// parentheses, e.g. "(Filter_1 | Filter_2) & ~Filter_3". OR binds loosest,
// then AND, then NOT. Names may contain any character except the operators,
// parentheses and whitespace.

type exprNode interface {
	eval(r *Registry) ([]bool, error)
}

type andNode struct{ left, right exprNode }
type orNode struct{ left, right exprNode }
type notNode struct{ arg exprNode }
type nameNode struct{ name string }

func (n andNode) eval(r *Registry) ([]bool, error) {
	a, err := n.left.eval(r)
	if err != nil {
		return nil, err
	}
	b, err := n.right.eval(r)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(a))
	for i := range out {
		out[i] = a[i] && b[i]
	}
	return out, nil
}

func (n orNode) eval(r *Registry) ([]bool, error) {
	a, err := n.left.eval(r)
	if err != nil {
		return nil, err
	}
	b, err := n.right.eval(r)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(a))
	for i := range out {
		out[i] = a[i] || b[i]
	}
	return out, nil
}

func (n notNode) eval(r *Registry) ([]bool, error) {
	a, err := n.arg.eval(r)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(a))
	for i := range out {
		out[i] = !a[i]
	}
	return out, nil
}

func (n nameNode) eval(r *Registry) ([]bool, error) {
	f, ok := r.Lookup(n.name)
	if !ok {
		return nil, fmt.Errorf("filters: unknown name %q: %w", n.name, ErrInvalidExpression)
	}
	return append([]bool(nil), f.Mask...), nil
}

type token struct {
	kind byte // one of '&', '|', '~', '(', ')', 'n'
	text string
}

func tokenize(key string) []token {
	var toks []token
	i := 0
	for i < len(key) {
		c := key[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '&' || c == '|' || c == '~' || c == '(' || c == ')':
			toks = append(toks, token{kind: c})
			i++
		default:
			j := i
			for j < len(key) && !strings.ContainsRune("&|~() \t", rune(key[j])) {
				j++
			}
			toks = append(toks, token{kind: 'n', text: key[i:j]})
			i = j
		}
	}
	return toks
}

type parser struct {
	toks []token
	pos  int
}

// parseExpression parses a filter expression into an evaluation tree.
func parseExpression(key string) (exprNode, error) {
	p := &parser{toks: tokenize(key)}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("filters: unexpected %q at token %d: %w", p.describe(p.pos), p.pos, ErrInvalidExpression)
	}
	return node, nil
}

func (p *parser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek('|') {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek('&') {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseUnary() (exprNode, error) {
	switch {
	case p.peek('~'):
		p.pos++
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{arg}, nil
	case p.peek('('):
		p.pos++
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.peek(')') {
			return nil, fmt.Errorf("filters: unbalanced parenthesis: %w", ErrInvalidExpression)
		}
		p.pos++
		return node, nil
	case p.peek('n'):
		n := nameNode{name: p.toks[p.pos].text}
		p.pos++
		return n, nil
	default:
		return nil, fmt.Errorf("filters: expected a filter name, got %q: %w", p.describe(p.pos), ErrInvalidExpression)
	}
}

func (p *parser) peek(kind byte) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == kind
}

func (p *parser) describe(pos int) string {
	if pos >= len(p.toks) {
		return "end of expression"
	}
	t := p.toks[pos]
	if t.kind == 'n' {
		return t.text
	}
	return string(t.kind)
}
