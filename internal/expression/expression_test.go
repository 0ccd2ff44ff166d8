package expression

import (
	"encoding/json"
	"strings"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid test expression %s: %v", s, err)
	}
	return v
}

func TestStyleEvaluate(t *testing.T) {
	feature := &Feature{
		ID:           7.0,
		GeometryType: "Point",
		Properties: map[string]interface{}{
			"kind":  "city",
			"pop":   1500.0,
			"rank":  2,
			"name":  "Oslo",
			"tags":  []interface{}{"a", "b"},
			"empty": nil,
		},
	}

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{name: "get", expr: `["get", "kind"]`, want: "city"},
		{name: "get missing", expr: `["get", "nope"]`, want: nil},
		{name: "has", expr: `["has", "pop"]`, want: true},
		{name: "has missing", expr: `["has", "nope"]`, want: false},
		{name: "equality", expr: `["==", ["get", "kind"], "city"]`, want: true},
		{name: "equality across types", expr: `["==", ["get", "pop"], "1500"]`, want: false},
		{name: "integer property", expr: `["==", ["get", "rank"], 2]`, want: true},
		{name: "inequality", expr: `["!=", ["get", "kind"], "town"]`, want: true},
		{name: "less than", expr: `["<", ["get", "pop"], 2000]`, want: true},
		{name: "string order", expr: `[">=", ["get", "name"], "Bergen"]`, want: true},
		{name: "all", expr: `["all", ["has", "pop"], ["==", ["get", "kind"], "city"]]`, want: true},
		{name: "any", expr: `["any", ["has", "nope"], false]`, want: false},
		{name: "not", expr: `["!", ["has", "nope"]]`, want: true},
		{name: "sum", expr: `["+", ["get", "pop"], 1, 2]`, want: 1503.0},
		{name: "minus unary", expr: `["-", 3]`, want: -3.0},
		{name: "divide", expr: `["/", ["get", "pop"], 10]`, want: 150.0},
		{name: "max", expr: `["max", 1, ["get", "pop"], 3]`, want: 1500.0},
		{name: "case", expr: `["case", ["<", ["get", "pop"], 1000], "small", "large"]`, want: "large"},
		{name: "match", expr: `["match", ["get", "kind"], ["town", "village"], 1, "city", 2, 0]`, want: 2.0},
		{name: "coalesce", expr: `["coalesce", ["get", "empty"], ["get", "name"]]`, want: "Oslo"},
		{name: "to-number", expr: `["to-number", "12.5"]`, want: 12.5},
		{name: "to-string", expr: `["to-string", ["get", "pop"]]`, want: "1500"},
		{name: "concat", expr: `["concat", ["get", "name"], "-", ["zoom"]]`, want: "Oslo-3"},
		{name: "upcase", expr: `["upcase", ["get", "name"]]`, want: "OSLO"},
		{name: "in array", expr: `["in", "b", ["get", "tags"]]`, want: true},
		{name: "id", expr: `["id"]`, want: 7.0},
		{name: "geometry-type", expr: `["geometry-type"]`, want: "Point"},
		{name: "literal", expr: `["literal", {"a": 1}]`, want: map[string]interface{}{"a": 1.0}},
		{name: "accumulated", expr: `["+", ["accumulated"], ["get", "pop"]]`, want: 1510.0},
	}

	adapter := NewAdapter(StyleEvaluator{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := adapter.Compile(decode(t, tt.expr), TypeValue)
			if err != nil {
				t.Fatalf("Compile(%s) error: %v", tt.expr, err)
			}
			got, err := compiled.Evaluate(Globals{Zoom: 3, Accumulated: 10.0}, feature)
			if err != nil {
				t.Fatalf("Evaluate(%s) error: %v", tt.expr, err)
			}
			if !equal(got, tt.want) {
				t.Errorf("Evaluate(%s) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected Type
		want     string
	}{
		{
			name:     "missing argument",
			expr:     `["==", ["get"], "city"]`,
			expected: TypeBoolean,
			want:     "[1]: Expected 1 to 2 arguments, but found 0 instead.",
		},
		{
			name:     "unknown operator",
			expr:     `["all", ["frobnicate", 1]]`,
			expected: TypeBoolean,
			want:     `[1][0]: Unknown expression "frobnicate". If you wanted a literal array, use ["literal", [...]].`,
		},
		{
			name:     "wrong output type",
			expr:     `["+", 1, 2]`,
			expected: TypeBoolean,
			want:     ": Expected boolean but found number instead.",
		},
		{
			name:     "several problems",
			expr:     `["all", ["==", 1], ["+", "a", 1]]`,
			expected: TypeBoolean,
			want:     "[1]: Expected 2 arguments, but found 1 instead., [2][1]: Expected number but found string instead., [2]: Expected boolean but found number instead.",
		},
		{
			name:     "bare object",
			expr:     `{"a": 1}`,
			expected: TypeValue,
			want:     `: Bare objects invalid. Use ["literal", {...}] instead.`,
		},
		{
			name:     "empty array",
			expr:     `[]`,
			expected: TypeValue,
			want:     `: Expected an array with at least one element. If you wanted a literal array, use ["literal", []].`,
		},
	}

	adapter := NewAdapter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Compile(decode(t, tt.expr), tt.expected)
			if err == nil {
				t.Fatalf("Compile(%s) expected error", tt.expr)
			}
			if _, ok := err.(*CompileError); !ok {
				t.Fatalf("expected *CompileError, got %T", err)
			}
			if err.Error() != tt.want {
				t.Errorf("error = %q\nwant    %q", err.Error(), tt.want)
			}
		})
	}
}

func TestEvaluateBool(t *testing.T) {
	adapter := NewAdapter(nil)
	compiled, err := adapter.Compile(decode(t, `["get", "flag"]`), TypeBoolean)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	if ok, err := compiled.EvaluateBool(Globals{}, PropertiesFeature(map[string]interface{}{"flag": true})); err != nil || !ok {
		t.Errorf("EvaluateBool(true) = %v, %v", ok, err)
	}
	if ok, err := compiled.EvaluateBool(Globals{}, PropertiesFeature(nil)); err != nil || ok {
		t.Errorf("EvaluateBool(missing) = %v, %v", ok, err)
	}
	if _, err := compiled.EvaluateBool(Globals{}, PropertiesFeature(map[string]interface{}{"flag": "yes"})); err == nil {
		t.Error("expected type error for string flag")
	}
}

func TestStyleReduceTerm(t *testing.T) {
	adapter := NewAdapter(StyleEvaluator{})
	term := adapter.ReduceTerm("+", "count")
	compiled, err := adapter.Compile(term, TypeValue)
	if err != nil {
		t.Fatalf("Compile(%v) error: %v", term, err)
	}
	got, err := compiled.Evaluate(Globals{Accumulated: 1.0}, PropertiesFeature(map[string]interface{}{"count": 1.0}))
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if got != 2.0 {
		t.Errorf("reduce = %v, want 2", got)
	}

	full := []interface{}{"max", []interface{}{"accumulated"}, []interface{}{"get", "size"}}
	if got := adapter.ReduceTerm(full, "size"); !equal(got, full) {
		t.Errorf("full expression was rewritten: %v", got)
	}
}

func TestLuaEvaluator(t *testing.T) {
	adapter := NewAdapter(LuaEvaluator{})
	feature := &Feature{
		GeometryType: "Point",
		Properties:   map[string]interface{}{"kind": "city", "count": 3.0, "name": "  Oslo "},
	}

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{name: "comparison", expr: `properties.kind == "city"`, want: true},
		{name: "arithmetic", expr: `properties.count * 2 + zoom`, want: 8.0},
		{name: "return chunk", expr: `return geometry_type`, want: "Point"},
		{name: "helper", expr: `upper(trim(properties.name))`, want: "OSLO"},
		{name: "missing property", expr: `properties.nope`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := adapter.Compile(tt.expr, TypeValue)
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", tt.expr, err)
			}
			got, err := compiled.Evaluate(Globals{Zoom: 2}, feature)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if !equal(got, tt.want) {
				t.Errorf("Evaluate(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestLuaCompileAndReduce(t *testing.T) {
	adapter := NewAdapter(LuaEvaluator{})

	_, err := adapter.Compile(`properties.count +`, TypeBoolean)
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !strings.HasPrefix(err.Error(), ": ") {
		t.Errorf("error should carry the root key: %q", err.Error())
	}

	if _, err := adapter.Compile([]interface{}{"get", "x"}, TypeValue); err == nil {
		t.Error("expected error for non-string Lua expression")
	}

	compiled, err := adapter.Compile(adapter.ReduceTerm("+", "count"), TypeValue)
	if err != nil {
		t.Fatalf("Compile reduce error: %v", err)
	}
	got, err := compiled.Evaluate(Globals{Accumulated: 1.0}, PropertiesFeature(map[string]interface{}{"count": 1.0}))
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if got != 2.0 {
		t.Errorf("reduce = %v, want 2", got)
	}

	runtimeErr, err := adapter.Compile(`properties.missing + 1`, TypeValue)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if _, err := runtimeErr.Evaluate(Globals{}, PropertiesFeature(nil)); err == nil {
		t.Error("expected runtime error for nil arithmetic")
	}
}

func TestAdapterCloseReleasesLuaStates(t *testing.T) {
	adapter := NewAdapter(LuaEvaluator{})

	var states []*luaExpression
	for _, expr := range []string{`properties.count > 1`, `properties.count * 2`} {
		compiled, err := adapter.Compile(expr, TypeValue)
		if err != nil {
			t.Fatalf("Compile(%q) error: %v", expr, err)
		}
		if _, err := compiled.Evaluate(Globals{}, PropertiesFeature(map[string]interface{}{"count": 2.0})); err != nil {
			t.Fatalf("Evaluate(%q) error: %v", expr, err)
		}
		states = append(states, compiled.expr.(*luaExpression))
	}

	adapter.Close()
	for i, e := range states {
		if e.L != nil {
			t.Errorf("state %d still open after Close", i)
		}
		if _, err := e.Evaluate(&Globals{}, PropertiesFeature(nil)); err == nil {
			t.Errorf("state %d evaluated after Close", i)
		}
	}

	// idempotent, and style expressions have nothing to release
	adapter.Close()
	style := NewAdapter(nil)
	if _, err := style.Compile(decode(t, `["get", "x"]`), TypeValue); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	style.Close()
}

func TestForDialect(t *testing.T) {
	for _, name := range []string{"", "style", "LUA"} {
		if _, err := ForDialect(name); err != nil {
			t.Errorf("ForDialect(%q) error: %v", name, err)
		}
	}
	if _, err := ForDialect("jsonata"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}
