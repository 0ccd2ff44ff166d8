package expression

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaEvaluator compiles Lua snippets. A snippet is either an expression such
// as `properties.count * 2` or a chunk that starts with return. The globals
// properties, zoom, accumulated, id and geometry_type are set before each call.
type LuaEvaluator struct{}

// luaReducers maps bare operator names to Lua templates over the accumulated
// value and the incoming property.
var luaReducers = map[string]string{
	"+":   "accumulated + properties[%s]",
	"*":   "accumulated * properties[%s]",
	"min": "math.min(accumulated, properties[%s])",
	"max": "math.max(accumulated, properties[%s])",
	"..":  "accumulated .. properties[%s]",
	"and": "accumulated and properties[%s]",
	"or":  "accumulated or properties[%s]",
}

// Compile implements Evaluator.
func (LuaEvaluator) Compile(expr interface{}, _ Type) (Expression, []ParsingError) {
	src, ok := expr.(string)
	if !ok {
		return nil, []ParsingError{{
			Key:     "",
			Message: fmt.Sprintf("Expected Lua source string but found %s instead.", describe(expr)),
		}}
	}

	code := strings.TrimSpace(src)
	if !strings.HasPrefix(code, "return") {
		code = "return " + code
	}

	L := lua.NewState()
	registerHelpers(L)

	fn, err := L.LoadString(code)
	if err != nil {
		L.Close()
		return nil, []ParsingError{{Key: "", Message: err.Error()}}
	}

	return &luaExpression{L: L, fn: fn}, nil
}

// ReduceTerm implements Evaluator.
func (LuaEvaluator) ReduceTerm(term interface{}, property string) interface{} {
	op, ok := term.(string)
	if !ok {
		return term
	}
	tmpl, ok := luaReducers[strings.TrimSpace(op)]
	if !ok {
		return term
	}
	return fmt.Sprintf(tmpl, strconv.Quote(property))
}

// luaExpression owns one Lua state; calls are serialized since a state is not
// safe for concurrent use.
type luaExpression struct {
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

func (e *luaExpression) Type() Type {
	return TypeValue
}

func (e *luaExpression) Evaluate(g *Globals, f *Feature) (interface{}, error) {
	if g == nil {
		g = &Globals{}
	}
	if f == nil {
		f = &Feature{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.L
	if L == nil {
		return nil, &EvaluationError{Message: "lua expression is closed"}
	}
	L.SetGlobal("properties", toLua(L, f.Properties))
	L.SetGlobal("zoom", lua.LNumber(g.Zoom))
	L.SetGlobal("accumulated", toLua(L, g.Accumulated))
	L.SetGlobal("id", toLua(L, f.ID))
	L.SetGlobal("geometry_type", lua.LString(f.GeometryType))

	if err := L.CallByParam(lua.P{
		Fn:      e.fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return nil, &EvaluationError{Message: fmt.Sprintf("lua expression error: %v", err)}
	}

	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}

// Close releases the Lua state. Safe to call repeatedly.
func (e *luaExpression) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.L != nil {
		e.L.Close()
		e.L = nil
	}
	return nil
}

// toLua converts a decoded JSON value to a Lua value.
func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, item := range x {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case []interface{}:
		tbl := L.NewTable()
		for i, item := range x {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	}
	if f, ok := toFloat(v); ok {
		return lua.LNumber(f)
	}
	return lua.LString(toString(v))
}

// fromLua converts a Lua value back. Tables with a sequence part become
// arrays, other tables become objects keyed by their string keys.
func fromLua(v lua.LValue) interface{} {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.MaxN(); n > 0 {
			list := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, fromLua(x.RawGetInt(i)))
			}
			return list
		}
		result := make(map[string]interface{})
		x.ForEach(func(key, value lua.LValue) {
			if key.Type() != lua.LTString {
				return
			}
			result[string(key.(lua.LString))] = fromLua(value)
		})
		return result
	}
	return nil
}

// registerHelpers exposes a few string helpers to expressions.
func registerHelpers(L *lua.LState) {
	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("lower", L.NewFunction(luaLower))
	L.SetGlobal("upper", L.NewFunction(luaUpper))
	L.SetGlobal("to_number", L.NewFunction(luaToNumber))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

func luaUpper(L *lua.LState) int {
	L.Push(lua.LString(strings.ToUpper(L.CheckString(1))))
	return 1
}

// luaToNumber returns nil when the value has no numeric reading.
func luaToNumber(L *lua.LState) int {
	switch v := L.Get(1).(type) {
	case lua.LNumber:
		L.Push(v)
	case lua.LString:
		if f, ok := parseNumber(string(v)); ok {
			L.Push(lua.LNumber(f))
		} else {
			L.Push(lua.LNil)
		}
	case lua.LBool:
		if v {
			L.Push(lua.LNumber(1))
		} else {
			L.Push(lua.LNumber(0))
		}
	default:
		L.Push(lua.LNil)
	}
	return 1
}
