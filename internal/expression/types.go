package expression

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Type is the static output type of an expression.
type Type int

const (
	TypeValue Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeNull
	TypeObject
	TypeArray
)

func (t Type) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	}
	return "value"
}

// Globals is the evaluation context shared by every feature of one pass.
type Globals struct {
	Zoom        float64
	Accumulated interface{}
}

// Feature is the read-only view of a feature an expression evaluates against.
type Feature struct {
	ID           interface{}
	GeometryType string
	Properties   map[string]interface{}
}

// NewFeature builds the evaluation view of a GeoJSON feature.
func NewFeature(f *geojson.Feature) *Feature {
	ef := &Feature{ID: f.ID, Properties: f.Properties}
	if f.Geometry != nil {
		ef.GeometryType = f.Geometry.GeoJSONType()
	}
	return ef
}

// PropertiesFeature wraps a bare property bag.
func PropertiesFeature(props map[string]interface{}) *Feature {
	return &Feature{Properties: props}
}

// ParsingError is one compile problem located by key, a path such as "[1][0]".
type ParsingError struct {
	Key     string
	Message string
}

func (e ParsingError) String() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// EvaluationError is returned when an expression fails at runtime.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

func evalErrorf(format string, args ...interface{}) error {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}

// Expression is a compiled expression.
type Expression interface {
	Type() Type
	Evaluate(g *Globals, f *Feature) (interface{}, error)
}

// Evaluator compiles expressions of one dialect.
type Evaluator interface {
	// Compile checks expr against expected and returns either an expression
	// or the list of problems found.
	Compile(expr interface{}, expected Type) (Expression, []ParsingError)

	// ReduceTerm expands a bare operator name into an expression that applies
	// it to the accumulated value and the named property. Any other term is
	// returned unchanged.
	ReduceTerm(term interface{}, property string) interface{}
}
