package vtile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxZoom is the deepest zoom level a tile address may use.
const MaxZoom = 24

// TileID addresses a tile in the XYZ scheme.
type TileID struct {
	Z uint32
	X uint32
	Y uint32
}

// String returns the tile in z/x/y format
func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether x and y fall inside the grid for the zoom level.
func (t TileID) Valid() bool {
	if t.Z > MaxZoom {
		return false
	}
	n := uint32(1) << t.Z
	return t.X < n && t.Y < n
}

// Parent returns the tile one zoom level up. The root is its own parent.
func (t TileID) Parent() TileID {
	if t.Z == 0 {
		return t
	}
	return TileID{Z: t.Z - 1, X: t.X >> 1, Y: t.Y >> 1}
}

// ParseTileID parses a tile written as z/x/y.
func ParseTileID(s string) (TileID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return TileID{}, fmt.Errorf("invalid tile %q: expected z/x/y", s)
	}

	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return TileID{}, fmt.Errorf("invalid tile %q: %w", s, err)
		}
		vals[i] = uint32(v)
	}

	t := TileID{Z: vals[0], X: vals[1], Y: vals[2]}
	if !t.Valid() {
		return TileID{}, fmt.Errorf("invalid tile %q: out of range", s)
	}
	return t, nil
}

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// IsValid checks if the bounding box is valid
func (b BBox) IsValid() bool {
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// ParseBBox parses minlon,minlat,maxlon,maxlat.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("invalid bbox value %q: %w", p, err)
		}
		vals[i] = v
	}

	b := BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if !b.IsValid() {
		return BBox{}, fmt.Errorf("invalid bbox %s", s)
	}
	return b, nil
}

// Web Mercator latitude limits
const (
	MaxMercatorLat = 85.0511287798
	MinMercatorLat = -85.0511287798
)

// LatLonToTile converts latitude/longitude to the tile containing it.
func LatLonToTile(lat, lon float64, zoom uint32) TileID {
	lat = math.Max(MinMercatorLat, math.Min(MaxMercatorLat, lat))
	lon = math.Max(-180, math.Min(180, lon))

	n := float64(uint32(1) << zoom)
	x := int64(LngX(lon) * n)
	y := int64(LatY(lat) * n)

	limit := int64(n) - 1
	if x > limit {
		x = limit
	}
	if y > limit {
		y = limit
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return TileID{Z: zoom, X: uint32(x), Y: uint32(y)}
}

// TilesInBBox returns every tile covering bbox for each zoom in [minZoom, maxZoom].
func TilesInBBox(b BBox, minZoom, maxZoom uint32) []TileID {
	var tiles []TileID
	for z := minZoom; z <= maxZoom; z++ {
		// Y grows southward.
		min := LatLonToTile(b.MaxLat, b.MinLon, z)
		max := LatLonToTile(b.MinLat, b.MaxLon, z)
		for x := min.X; x <= max.X; x++ {
			for y := min.Y; y <= max.Y; y++ {
				tiles = append(tiles, TileID{Z: z, X: x, Y: y})
			}
		}
	}
	return tiles
}
