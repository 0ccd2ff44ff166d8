package tileindex

import (
	"fmt"

	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// Options controls tiling. Buffer and Tolerance are in tile pixels of Extent.
type Options struct {
	MaxZoom    uint32  `json:"maxZoom" yaml:"maxZoom"`
	Buffer     float64 `json:"buffer" yaml:"buffer"`
	Tolerance  float64 `json:"tolerance" yaml:"tolerance"`
	Extent     uint32  `json:"extent" yaml:"extent"`
	GenerateID bool    `json:"generateId" yaml:"generateId"`
}

// DefaultOptions returns the tiling used for a 512px source with an 8192 extent.
func DefaultOptions() Options {
	return Options{
		MaxZoom:   18,
		Buffer:    128 * 16,
		Tolerance: 0.375 * 16,
		Extent:    8192,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Extent == 0 {
		return fmt.Errorf("extent must be positive")
	}
	if o.MaxZoom > vtile.MaxZoom {
		return fmt.Errorf("maxZoom must be between 0 and %d, got %d", vtile.MaxZoom, o.MaxZoom)
	}
	if o.Buffer < 0 {
		return fmt.Errorf("buffer must be non-negative, got %g", o.Buffer)
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %g", o.Tolerance)
	}
	return nil
}
