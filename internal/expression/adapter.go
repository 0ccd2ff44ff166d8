package expression

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Dialect names accepted by ForDialect.
const (
	DialectStyle = "style"
	DialectLua   = "lua"
)

// ForDialect returns the evaluator for a dialect name. The empty name selects
// the style dialect.
func ForDialect(name string) (Evaluator, error) {
	switch strings.ToLower(name) {
	case "", DialectStyle:
		return StyleEvaluator{}, nil
	case DialectLua:
		return LuaEvaluator{}, nil
	}
	return nil, fmt.Errorf("unknown expression dialect %q (expected %s or %s)", name, DialectStyle, DialectLua)
}

// CompileError aggregates the problems reported by an evaluator.
type CompileError struct {
	Errors []ParsingError
}

// Error joins each problem as "key: message", comma separated.
func (e *CompileError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		parts[i] = pe.String()
	}
	return strings.Join(parts, ", ")
}

// Adapter compiles expressions through an Evaluator and hands out typed
// closures over the result. Close releases everything it compiled.
type Adapter struct {
	evaluator Evaluator

	mu       sync.Mutex
	compiled []*Compiled
}

// NewAdapter wraps ev. A nil evaluator selects the style dialect.
func NewAdapter(ev Evaluator) *Adapter {
	if ev == nil {
		ev = StyleEvaluator{}
	}
	return &Adapter{evaluator: ev}
}

// Compile compiles expr, checked against expected. Failures are returned as
// *CompileError.
func (a *Adapter) Compile(expr interface{}, expected Type) (*Compiled, error) {
	compiled, errs := a.evaluator.Compile(expr, expected)
	if len(errs) > 0 {
		return nil, &CompileError{Errors: errs}
	}
	if compiled == nil {
		return nil, &CompileError{Errors: []ParsingError{{Key: "", Message: "evaluator returned no expression"}}}
	}
	c := &Compiled{expr: compiled, expected: expected}
	a.mu.Lock()
	a.compiled = append(a.compiled, c)
	a.mu.Unlock()
	return c, nil
}

// Close releases the resources of every expression compiled so far. They
// must not be evaluated afterwards.
func (a *Adapter) Close() {
	a.mu.Lock()
	compiled := a.compiled
	a.compiled = nil
	a.mu.Unlock()

	for _, c := range compiled {
		c.Close()
	}
}

// ReduceTerm expands a bare reduce operator for property.
func (a *Adapter) ReduceTerm(term interface{}, property string) interface{} {
	return a.evaluator.ReduceTerm(term, property)
}

// Compiled is a successfully compiled expression.
type Compiled struct {
	expr     Expression
	expected Type
}

// Evaluate runs the expression. Results that do not match the expected type
// are reported as evaluation errors.
func (c *Compiled) Evaluate(g Globals, f *Feature) (interface{}, error) {
	v, err := c.expr.Evaluate(&g, f)
	if err != nil {
		return nil, err
	}
	if c.expected != TypeValue && v != nil && typeOf(v) != c.expected {
		return nil, evalErrorf("Expected value to be of type %s, but found %s instead.", c.expected, describe(v))
	}
	if num, ok := toFloat(v); ok {
		return num, nil
	}
	return v, nil
}

// Close releases evaluator resources held by the expression, such as a Lua
// state.
func (c *Compiled) Close() {
	if closer, ok := c.expr.(io.Closer); ok {
		_ = closer.Close()
	}
}

// EvaluateBool runs a boolean expression. A null result is false.
func (c *Compiled) EvaluateBool(g Globals, f *Feature) (bool, error) {
	v, err := c.Evaluate(g, f)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok && v != nil {
		return false, evalErrorf("Expected value to be of type boolean, but found %s instead.", describe(v))
	}
	return b, nil
}
