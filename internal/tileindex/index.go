package tileindex

import (
	"fmt"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"

	"github.com/wegman-software/geojson2mvt-go/internal/vtile"
)

// feature is a source feature in unit mercator space.
type feature struct {
	id    interface{}
	geom  orb.Geometry
	props map[string]interface{}
}

// CacheTiles bounds the number of clipped tiles an index keeps.
const CacheTiles = 4096

// Index cuts a feature collection into tiles on demand. Clipped feature sets
// are kept in an LRU cache so deeper tiles start from their nearest cut
// ancestor. Safe for concurrent use.
type Index struct {
	opts  Options
	root  []*feature
	count int
	cache gcache.Cache
}

// New projects fc and returns an index over it. Features are not modified.
func New(fc *geojson.FeatureCollection, opts Options) (*Index, error) {
	return build(fc, opts, CacheTiles)
}

func build(fc *geojson.FeatureCollection, opts Options, cacheTiles int) (*Index, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tile options: %w", err)
	}

	idx := &Index{
		opts:  opts,
		cache: gcache.New(cacheTiles).LRU().Build(),
	}

	// Geometries within the buffer of the antimeridian also get a copy
	// shifted by one world so tiles on the other edge include them.
	k := opts.Buffer / float64(opts.Extent)

	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		var id interface{} = f.ID
		if opts.GenerateID {
			id = float64(i)
		}
		for _, g := range flatten(f.Geometry) {
			projected := vtile.ProjectUnit(g)
			idx.count++
			idx.root = append(idx.root, &feature{id: id, geom: projected, props: f.Properties})

			b := projected.Bound()
			if b.Min[0] < k {
				idx.root = append(idx.root, &feature{id: id, geom: shiftX(projected, 1), props: f.Properties})
			}
			if b.Max[0] > 1-k {
				idx.root = append(idx.root, &feature{id: id, geom: shiftX(projected, -1), props: f.Properties})
			}
		}
	}

	return idx, nil
}

// shiftX returns a copy of g moved by dx worlds in unit space.
func shiftX(g orb.Geometry, dx float64) orb.Geometry {
	return project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		return orb.Point{p[0] + dx, p[1]}
	})
}

// flatten splits collections, which tiles cannot carry, into their members.
func flatten(g orb.Geometry) []orb.Geometry {
	switch v := g.(type) {
	case orb.Collection:
		var out []orb.Geometry
		for _, c := range v {
			out = append(out, flatten(c)...)
		}
		return out
	case orb.Bound:
		return []orb.Geometry{v.ToPolygon()}
	}
	return []orb.Geometry{g}
}

// Len returns the number of indexed geometries, not counting the copies
// made across the antimeridian.
func (idx *Index) Len() int {
	return idx.count
}

// Options returns the tiling options the index was built with.
func (idx *Index) Options() Options {
	return idx.opts
}

// GetTile returns the features of tile z/x/y in pixel coordinates, or nil
// when the tile holds nothing. x wraps around the antimeridian.
func (idx *Index) GetTile(z, x, y uint32) *vtile.Tile {
	if z > vtile.MaxZoom {
		return nil
	}
	z2 := uint32(1) << z
	x %= z2
	if y >= z2 {
		return nil
	}
	id := vtile.TileID{Z: z, X: x, Y: y}

	clipped := idx.clipped(id)
	if len(clipped) == 0 {
		return nil
	}

	tile := &vtile.Tile{ID: id}
	for _, f := range clipped {
		if g := idx.transform(f.geom, id); g != nil {
			tile.Features = append(tile.Features, &vtile.Feature{
				ID:         f.id,
				Geometry:   g,
				Properties: f.props,
			})
		}
	}
	if len(tile.Features) == 0 {
		return nil
	}
	return tile
}

// clipped returns the features intersecting the buffered bounds of id.
// Concurrent callers may clip the same tile twice; the results are equal.
func (idx *Index) clipped(id vtile.TileID) []*feature {
	if cached, err := idx.cache.Get(id); err == nil {
		return cached.([]*feature)
	}

	parent := idx.root
	if id.Z > 0 {
		parent = idx.clipped(id.Parent())
	}

	bound := idx.bound(id)
	var out []*feature
	for _, f := range parent {
		if !f.geom.Bound().Intersects(bound) {
			continue
		}
		g := clip.Geometry(bound, orb.Clone(f.geom))
		if g == nil || isEmpty(g) {
			continue
		}
		out = append(out, &feature{id: f.id, geom: g, props: f.props})
	}

	_ = idx.cache.Set(id, out)
	return out
}

// bound is the buffered extent of id in unit mercator space.
func (idx *Index) bound(id vtile.TileID) orb.Bound {
	z2 := float64(uint32(1) << id.Z)
	k := idx.opts.Buffer / float64(idx.opts.Extent)
	return orb.Bound{
		Min: orb.Point{(float64(id.X) - k) / z2, (float64(id.Y) - k) / z2},
		Max: orb.Point{(float64(id.X) + 1 + k) / z2, (float64(id.Y) + 1 + k) / z2},
	}
}

// transform simplifies g for the zoom of id and converts it to tile pixels.
// Geometries that collapse are dropped.
func (idx *Index) transform(g orb.Geometry, id vtile.TileID) orb.Geometry {
	z2 := float64(uint32(1) << id.Z)
	extent := float64(idx.opts.Extent)

	g = orb.Clone(g)
	if id.Z < idx.opts.MaxZoom && idx.opts.Tolerance > 0 && vtile.TypeOf(g) != vtile.GeomPoint {
		g = simplify.DouglasPeucker(idx.opts.Tolerance / (z2 * extent)).Simplify(g)
	}

	tx, ty := float64(id.X), float64(id.Y)
	g = project.Geometry(g, func(p orb.Point) orb.Point {
		return vtile.ToTilePixels(p, z2, tx, ty, extent)
	})

	g = cleanup(g)
	if g == nil {
		return nil
	}
	vtile.Rewind(g, orb.CCW)
	return g
}
