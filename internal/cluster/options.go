package cluster

import "fmt"

// Aggregation derives and merges cluster properties. Map turns the
// properties of an input point into the properties it contributes; Reduce
// folds incoming into accumulated in place.
type Aggregation interface {
	Map(props map[string]interface{}) map[string]interface{}
	Reduce(accumulated, incoming map[string]interface{})
}

// Options controls clustering. Radius is in pixels of Extent.
type Options struct {
	MinZoom    int     `json:"minZoom" yaml:"minZoom"`
	MaxZoom    int     `json:"maxZoom" yaml:"maxZoom"`
	MinPoints  int     `json:"minPoints" yaml:"minPoints"`
	Radius     float64 `json:"radius" yaml:"radius"`
	Extent     float64 `json:"extent" yaml:"extent"`
	NodeSize   int     `json:"nodeSize" yaml:"nodeSize"`
	GenerateID bool    `json:"generateId" yaml:"generateId"`

	// Aggregation is optional; without it clusters only carry counts.
	Aggregation Aggregation `json:"-" yaml:"-"`
}

// DefaultOptions returns clustering for a 512px source with an 8192 extent.
func DefaultOptions() Options {
	return Options{
		MinZoom:   0,
		MaxZoom:   17,
		MinPoints: 2,
		Radius:    50 * 16,
		Extent:    8192,
		NodeSize:  64,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.MinZoom < 0 || o.MaxZoom > 24 || o.MinZoom > o.MaxZoom {
		return fmt.Errorf("zoom range %d..%d must lie within 0..24", o.MinZoom, o.MaxZoom)
	}
	if o.MinPoints < 2 {
		return fmt.Errorf("minPoints must be at least 2, got %d", o.MinPoints)
	}
	if o.Radius <= 0 {
		return fmt.Errorf("radius must be positive, got %g", o.Radius)
	}
	if o.Extent <= 0 {
		return fmt.Errorf("extent must be positive, got %g", o.Extent)
	}
	if o.NodeSize <= 0 {
		return fmt.Errorf("nodeSize must be positive, got %d", o.NodeSize)
	}
	return nil
}
