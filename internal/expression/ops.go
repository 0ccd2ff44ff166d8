package expression

import (
	"math"
	"strings"
)

type opFunc func(p *parser, key string, args []interface{}) *node

var operators map[string]opFunc

func init() {
	operators = map[string]opFunc{
		"literal":       opLiteral,
		"get":           opGet,
		"has":           opHas,
		"id":            opID,
		"geometry-type": opGeometryType,
		"properties":    opProperties,
		"zoom":          opZoom,
		"accumulated":   opAccumulated,
		"==":            opEquality(false),
		"!=":            opEquality(true),
		"<":             opCompare(func(c int) bool { return c < 0 }),
		"<=":            opCompare(func(c int) bool { return c <= 0 }),
		">":             opCompare(func(c int) bool { return c > 0 }),
		">=":            opCompare(func(c int) bool { return c >= 0 }),
		"!":             opNot,
		"all":           opAll,
		"any":           opAny,
		"case":          opCase,
		"match":         opMatch,
		"coalesce":      opCoalesce,
		"+":             opFold(0, func(a, b float64) float64 { return a + b }),
		"*":             opFold(1, func(a, b float64) float64 { return a * b }),
		"min":           opFold(math.Inf(1), math.Min),
		"max":           opFold(math.Inf(-1), math.Max),
		"-":             opMinus,
		"/":             opBinary(func(a, b float64) float64 { return a / b }),
		"%":             opBinary(math.Mod),
		"^":             opBinary(math.Pow),
		"abs":           opUnary(math.Abs),
		"floor":         opUnary(math.Floor),
		"ceil":          opUnary(math.Ceil),
		"round":         opUnary(math.Round),
		"sqrt":          opUnary(math.Sqrt),
		"ln":            opUnary(math.Log),
		"to-number":     opToNumber,
		"to-string":     opToString,
		"to-boolean":    opToBoolean,
		"number":        opAssert(TypeNumber),
		"string":        opAssert(TypeString),
		"boolean":       opAssert(TypeBoolean),
		"typeof":        opTypeof,
		"concat":        opConcat,
		"upcase":        opStringMap(strings.ToUpper),
		"downcase":      opStringMap(strings.ToLower),
		"length":        opLength,
		"in":            opIn,
	}
}

func opLiteral(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	return constant(args[0])
}

func lookup(p *parser, key string, args []interface{}, found func(v interface{}, ok bool) interface{}, typ Type) *node {
	if !p.arity(key, args, 1, 2) {
		return invalid
	}
	nodes := p.args(key, args)
	name := nodes[0]
	var object *node
	if len(nodes) == 2 {
		object = nodes[1]
	}

	return &node{typ: typ, eval: func(g *Globals, f *Feature) (interface{}, error) {
		k, err := evalString(name, g, f)
		if err != nil {
			return nil, err
		}
		props := f.Properties
		if object != nil {
			v, err := object.eval(g, f)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				return found(nil, false), nil
			}
			props = m
		}
		v, ok := props[k]
		return found(v, ok), nil
	}}
}

func opGet(p *parser, key string, args []interface{}) *node {
	return lookup(p, key, args, func(v interface{}, _ bool) interface{} { return v }, TypeValue)
}

func opHas(p *parser, key string, args []interface{}) *node {
	return lookup(p, key, args, func(_ interface{}, ok bool) interface{} { return ok }, TypeBoolean)
}

func nullary(typ Type, fn evalFunc) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 0, 0) {
			return invalid
		}
		return &node{typ: typ, eval: fn}
	}
}

var (
	opID = nullary(TypeValue, func(_ *Globals, f *Feature) (interface{}, error) {
		return f.ID, nil
	})
	opGeometryType = nullary(TypeString, func(_ *Globals, f *Feature) (interface{}, error) {
		return f.GeometryType, nil
	})
	opProperties = nullary(TypeObject, func(_ *Globals, f *Feature) (interface{}, error) {
		if f.Properties == nil {
			return map[string]interface{}{}, nil
		}
		return f.Properties, nil
	})
	opZoom = nullary(TypeNumber, func(g *Globals, _ *Feature) (interface{}, error) {
		return g.Zoom, nil
	})
	opAccumulated = nullary(TypeValue, func(g *Globals, _ *Feature) (interface{}, error) {
		return g.Accumulated, nil
	})
)

func opEquality(negate bool) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 2, 2) {
			return invalid
		}
		nodes := p.args(key, args)
		return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
			a, err := nodes[0].eval(g, f)
			if err != nil {
				return nil, err
			}
			b, err := nodes[1].eval(g, f)
			if err != nil {
				return nil, err
			}
			return equal(a, b) != negate, nil
		}}
	}
}

func opCompare(test func(int) bool) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 2, 2) {
			return invalid
		}
		nodes := p.args(key, args)
		return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
			a, err := nodes[0].eval(g, f)
			if err != nil {
				return nil, err
			}
			b, err := nodes[1].eval(g, f)
			if err != nil {
				return nil, err
			}
			c, err := compare(a, b)
			if err != nil {
				return nil, err
			}
			return test(c), nil
		}}
	}
}

func opNot(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	nodes := p.typed(key, args, TypeBoolean)
	return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
		b, err := evalBool(nodes[0], g, f)
		if err != nil {
			return nil, err
		}
		return !b, nil
	}}
}

// logical builds all/any. stop is the value that short-circuits.
func logical(stop bool) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		nodes := p.typed(key, args, TypeBoolean)
		return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
			for _, n := range nodes {
				b, err := evalBool(n, g, f)
				if err != nil {
					return nil, err
				}
				if b == stop {
					return stop, nil
				}
			}
			return !stop, nil
		}}
	}
}

var (
	opAll = logical(false)
	opAny = logical(true)
)

// outputType is the common type of branches, or value when they differ.
func outputType(nodes []*node) Type {
	if len(nodes) == 0 {
		return TypeValue
	}
	t := nodes[0].typ
	for _, n := range nodes[1:] {
		if n.typ != t {
			return TypeValue
		}
	}
	return t
}

func opCase(p *parser, key string, args []interface{}) *node {
	if len(args) < 3 {
		return p.errorf(key, "Expected at least 3 arguments, but found only %d.", len(args))
	}
	if len(args)%2 == 0 {
		return p.errorf(key, "Expected an odd number of arguments.")
	}
	nodes := p.args(key, args)
	var outputs []*node
	for i := 0; i+1 < len(nodes); i += 2 {
		if c := nodes[i]; c != invalid && c.typ != TypeBoolean && c.typ != TypeValue {
			p.errorf(childKey(key, i+1), "Expected boolean but found %s instead.", c.typ)
		}
		outputs = append(outputs, nodes[i+1])
	}
	fallback := nodes[len(nodes)-1]
	outputs = append(outputs, fallback)

	return &node{typ: outputType(outputs), eval: func(g *Globals, f *Feature) (interface{}, error) {
		for i := 0; i+1 < len(nodes); i += 2 {
			b, err := evalBool(nodes[i], g, f)
			if err != nil {
				return nil, err
			}
			if b {
				return nodes[i+1].eval(g, f)
			}
		}
		return fallback.eval(g, f)
	}}
}

func opMatch(p *parser, key string, args []interface{}) *node {
	if len(args) < 4 {
		return p.errorf(key, "Expected at least 4 arguments, but found only %d.", len(args))
	}
	if len(args)%2 != 0 {
		return p.errorf(key, "Expected an even number of arguments.")
	}

	input := p.parse(args[0], childKey(key, 1))
	type branch struct {
		labels []interface{}
		output *node
	}
	var branches []branch
	for i := 1; i+1 < len(args); i += 2 {
		labels, ok := args[i].([]interface{})
		if !ok {
			labels = []interface{}{args[i]}
		}
		if len(labels) == 0 {
			p.errorf(childKey(key, i+1), "Expected at least one branch label.")
		}
		for _, l := range labels {
			switch typeOf(l) {
			case TypeNumber, TypeString:
			default:
				p.errorf(childKey(key, i+1), "Branch labels must be numbers or strings.")
			}
		}
		branches = append(branches, branch{labels: labels, output: p.parse(args[i+1], childKey(key, i+2))})
	}
	fallback := p.parse(args[len(args)-1], childKey(key, len(args)))

	outputs := []*node{fallback}
	for _, b := range branches {
		outputs = append(outputs, b.output)
	}

	return &node{typ: outputType(outputs), eval: func(g *Globals, f *Feature) (interface{}, error) {
		v, err := input.eval(g, f)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			for _, l := range b.labels {
				if equal(v, l) {
					return b.output.eval(g, f)
				}
			}
		}
		return fallback.eval(g, f)
	}}
}

func opCoalesce(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, -1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: outputType(nodes), eval: func(g *Globals, f *Feature) (interface{}, error) {
		var last interface{}
		for _, n := range nodes {
			v, err := n.eval(g, f)
			if err != nil {
				continue
			}
			if v != nil {
				return v, nil
			}
			last = v
		}
		return last, nil
	}}
}

func opFold(initial float64, fold func(a, b float64) float64) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 1, -1) {
			return invalid
		}
		nodes := p.typed(key, args, TypeNumber)
		return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
			acc := initial
			for _, n := range nodes {
				v, err := evalNumber(n, g, f)
				if err != nil {
					return nil, err
				}
				acc = fold(acc, v)
			}
			return acc, nil
		}}
	}
}

func opMinus(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 2) {
		return invalid
	}
	nodes := p.typed(key, args, TypeNumber)
	return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
		a, err := evalNumber(nodes[0], g, f)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 1 {
			return -a, nil
		}
		b, err := evalNumber(nodes[1], g, f)
		if err != nil {
			return nil, err
		}
		return a - b, nil
	}}
}

func opBinary(fn func(a, b float64) float64) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 2, 2) {
			return invalid
		}
		nodes := p.typed(key, args, TypeNumber)
		return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
			a, err := evalNumber(nodes[0], g, f)
			if err != nil {
				return nil, err
			}
			b, err := evalNumber(nodes[1], g, f)
			if err != nil {
				return nil, err
			}
			return fn(a, b), nil
		}}
	}
}

func opUnary(fn func(float64) float64) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 1, 1) {
			return invalid
		}
		nodes := p.typed(key, args, TypeNumber)
		return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
			a, err := evalNumber(nodes[0], g, f)
			if err != nil {
				return nil, err
			}
			return fn(a), nil
		}}
	}
}

func opToNumber(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, -1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
		var last interface{}
		for _, n := range nodes {
			v, err := n.eval(g, f)
			if err != nil {
				return nil, err
			}
			last = v
			switch x := v.(type) {
			case nil:
				return 0.0, nil
			case bool:
				if x {
					return 1.0, nil
				}
				return 0.0, nil
			case string:
				if num, ok := parseNumber(x); ok {
					return num, nil
				}
				continue
			}
			if num, ok := toFloat(v); ok {
				return num, nil
			}
		}
		return nil, evalErrorf("Could not convert %s to number.", toString(last))
	}}
}

func opToString(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeString, eval: func(g *Globals, f *Feature) (interface{}, error) {
		v, err := nodes[0].eval(g, f)
		if err != nil {
			return nil, err
		}
		return toString(v), nil
	}}
}

func opToBoolean(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
		v, err := nodes[0].eval(g, f)
		if err != nil {
			return nil, err
		}
		return truthy(v), nil
	}}
}

func opAssert(want Type) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 1, -1) {
			return invalid
		}
		nodes := p.args(key, args)
		return &node{typ: want, eval: func(g *Globals, f *Feature) (interface{}, error) {
			var last interface{}
			for _, n := range nodes {
				v, err := n.eval(g, f)
				if err != nil {
					return nil, err
				}
				if typeOf(v) == want {
					if num, ok := toFloat(v); ok {
						return num, nil
					}
					return v, nil
				}
				last = v
			}
			return nil, evalErrorf("Expected value to be of type %s, but found %s instead.", want, describe(last))
		}}
	}
}

func opTypeof(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeString, eval: func(g *Globals, f *Feature) (interface{}, error) {
		v, err := nodes[0].eval(g, f)
		if err != nil {
			return nil, err
		}
		return describe(v), nil
	}}
}

func opConcat(p *parser, key string, args []interface{}) *node {
	nodes := p.args(key, args)
	return &node{typ: TypeString, eval: func(g *Globals, f *Feature) (interface{}, error) {
		var sb strings.Builder
		for _, n := range nodes {
			v, err := n.eval(g, f)
			if err != nil {
				return nil, err
			}
			sb.WriteString(toString(v))
		}
		return sb.String(), nil
	}}
}

func opStringMap(fn func(string) string) opFunc {
	return func(p *parser, key string, args []interface{}) *node {
		if !p.arity(key, args, 1, 1) {
			return invalid
		}
		nodes := p.typed(key, args, TypeString)
		return &node{typ: TypeString, eval: func(g *Globals, f *Feature) (interface{}, error) {
			s, err := evalString(nodes[0], g, f)
			if err != nil {
				return nil, err
			}
			return fn(s), nil
		}}
	}
}

func opLength(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 1, 1) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeNumber, eval: func(g *Globals, f *Feature) (interface{}, error) {
		v, err := nodes[0].eval(g, f)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case string:
			return float64(len([]rune(x))), nil
		case []interface{}:
			return float64(len(x)), nil
		}
		return nil, evalErrorf("Expected value to be of type string or array, but found %s instead.", describe(v))
	}}
}

func opIn(p *parser, key string, args []interface{}) *node {
	if !p.arity(key, args, 2, 2) {
		return invalid
	}
	nodes := p.args(key, args)
	return &node{typ: TypeBoolean, eval: func(g *Globals, f *Feature) (interface{}, error) {
		needle, err := nodes[0].eval(g, f)
		if err != nil {
			return nil, err
		}
		haystack, err := nodes[1].eval(g, f)
		if err != nil {
			return nil, err
		}
		switch h := haystack.(type) {
		case nil:
			return false, nil
		case string:
			s, ok := needle.(string)
			if !ok {
				return nil, evalErrorf("Expected first argument to be of type string, but found %s instead.", describe(needle))
			}
			return strings.Contains(h, s), nil
		case []interface{}:
			for _, item := range h {
				if equal(item, needle) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, evalErrorf("Expected second argument to be of type array or string, but found %s instead.", describe(haystack))
	}}
}
