package expression

import (
	"fmt"
)

// StyleEvaluator compiles JSON style expressions of the form
// ["operator", arg, ...], as decoded by encoding/json.
type StyleEvaluator struct{}

// Compile implements Evaluator.
func (StyleEvaluator) Compile(expr interface{}, expected Type) (Expression, []ParsingError) {
	p := &parser{}
	root := p.parse(expr, "")
	if len(p.errors) > 0 {
		return nil, p.errors
	}
	if expected != TypeValue && root.typ != expected && root.typ != TypeValue {
		return nil, []ParsingError{{
			Key:     "",
			Message: fmt.Sprintf("Expected %s but found %s instead.", expected, root.typ),
		}}
	}
	return &styleExpression{root: root}, nil
}

// ReduceTerm implements Evaluator.
func (StyleEvaluator) ReduceTerm(term interface{}, property string) interface{} {
	if op, ok := term.(string); ok {
		return []interface{}{op, []interface{}{"accumulated"}, []interface{}{"get", property}}
	}
	return term
}

type styleExpression struct {
	root *node
}

func (e *styleExpression) Type() Type {
	return e.root.typ
}

func (e *styleExpression) Evaluate(g *Globals, f *Feature) (interface{}, error) {
	if g == nil {
		g = &Globals{}
	}
	if f == nil {
		f = &Feature{}
	}
	return e.root.eval(g, f)
}

type evalFunc func(g *Globals, f *Feature) (interface{}, error)

type node struct {
	typ  Type
	eval evalFunc
}

func constant(v interface{}) *node {
	return &node{
		typ:  typeOf(v),
		eval: func(*Globals, *Feature) (interface{}, error) { return v, nil },
	}
}

// invalid stands in for a sub-expression that failed to parse.
var invalid = constant(nil)

type parser struct {
	errors []ParsingError
}

func (p *parser) errorf(key, format string, args ...interface{}) *node {
	p.errors = append(p.errors, ParsingError{Key: key, Message: fmt.Sprintf(format, args...)})
	return invalid
}

func childKey(key string, i int) string {
	return fmt.Sprintf("%s[%d]", key, i)
}

func (p *parser) parse(expr interface{}, key string) *node {
	switch v := expr.(type) {
	case nil, bool, string:
		return constant(v)
	case []interface{}:
		return p.parseCall(v, key)
	case map[string]interface{}:
		return p.errorf(key, `Bare objects invalid. Use ["literal", {...}] instead.`)
	}
	if f, ok := toFloat(expr); ok {
		return constant(f)
	}
	return p.errorf(key, "Unsupported value of type %T.", expr)
}

func (p *parser) parseCall(expr []interface{}, key string) *node {
	if len(expr) == 0 {
		return p.errorf(key, `Expected an array with at least one element. If you wanted a literal array, use ["literal", []].`)
	}
	op, ok := expr[0].(string)
	if !ok {
		return p.errorf(childKey(key, 0), `Expression name must be a string, but found %s instead. If you wanted a literal array, use ["literal", [...]].`, describe(expr[0]))
	}
	def, ok := operators[op]
	if !ok {
		return p.errorf(childKey(key, 0), `Unknown expression "%s". If you wanted a literal array, use ["literal", [...]].`, op)
	}
	return def(p, key, expr[1:])
}

// args parses every argument, keyed by its position in the parent array.
func (p *parser) args(key string, args []interface{}) []*node {
	nodes := make([]*node, len(args))
	for i, a := range args {
		nodes[i] = p.parse(a, childKey(key, i+1))
	}
	return nodes
}

// typed parses args and requires each to produce want when its type is known.
func (p *parser) typed(key string, args []interface{}, want Type) []*node {
	nodes := p.args(key, args)
	for i, n := range nodes {
		if n != invalid && n.typ != want && n.typ != TypeValue {
			p.errorf(childKey(key, i+1), "Expected %s but found %s instead.", want, n.typ)
		}
	}
	return nodes
}

func (p *parser) arity(key string, args []interface{}, min, max int) bool {
	n := len(args)
	if n >= min && (max < 0 || n <= max) {
		return true
	}
	switch {
	case min == max:
		p.errorf(key, "Expected %d arguments, but found %d instead.", min, n)
	case max < 0:
		p.errorf(key, "Expected at least %d arguments, but found %d instead.", min, n)
	default:
		p.errorf(key, "Expected %d to %d arguments, but found %d instead.", min, max, n)
	}
	return false
}

func evalNumber(n *node, g *Globals, f *Feature) (float64, error) {
	v, err := n.eval(g, f)
	if err != nil {
		return 0, err
	}
	num, ok := toFloat(v)
	if !ok {
		return 0, evalErrorf("Expected value to be of type number, but found %s instead.", describe(v))
	}
	return num, nil
}

func evalBool(n *node, g *Globals, f *Feature) (bool, error) {
	v, err := n.eval(g, f)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, evalErrorf("Expected value to be of type boolean, but found %s instead.", describe(v))
	}
	return b, nil
}

func evalString(n *node, g *Globals, f *Feature) (string, error) {
	v, err := n.eval(g, f)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", evalErrorf("Expected value to be of type string, but found %s instead.", describe(v))
	}
	return s, nil
}
