package vtile

import (
	"math"

	"github.com/paulmach/orb"
)

// GeomType is the vector tile geometry class.
type GeomType int

const (
	GeomUnknown GeomType = iota
	GeomPoint
	GeomLine
	GeomPolygon
)

// Feature is a feature already transformed into tile pixel coordinates.
type Feature struct {
	ID         interface{}
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Type classifies the feature geometry.
func (f *Feature) Type() GeomType {
	return TypeOf(f.Geometry)
}

// TypeOf classifies a geometry.
func TypeOf(g orb.Geometry) GeomType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return GeomPoint
	case orb.LineString, orb.MultiLineString:
		return GeomLine
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		return GeomPolygon
	}
	return GeomUnknown
}

// Tile is the feature subset of one tile address.
type Tile struct {
	ID       TileID
	Features []*Feature
}

// ToTilePixels converts a point in unit mercator space to pixel coordinates of
// tile (z2 = 2^z, x, y) with the given extent. tileX may be outside [0, z2) for
// wrapped copies.
func ToTilePixels(p orb.Point, z2, tileX, tileY float64, extent float64) orb.Point {
	return orb.Point{
		math.Round(extent * (p[0]*z2 - tileX)),
		math.Round(extent * (p[1]*z2 - tileY)),
	}
}
