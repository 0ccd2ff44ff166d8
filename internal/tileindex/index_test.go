package tileindex

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return fc
}

func newTestFeature(id interface{}, g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.ID = id
	f.Properties = props
	return f
}

func TestGetTilePoint(t *testing.T) {
	idx, err := New(collection(newTestFeature("a", orb.Point{0, 0}, geojson.Properties{"name": "null island"})), DefaultOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tests := []struct {
		name    string
		z, x, y uint32
		want    *orb.Point
	}{
		{name: "root", z: 0, x: 0, y: 0, want: &orb.Point{4096, 4096}},
		{name: "corner of quadrant", z: 1, x: 1, y: 1, want: &orb.Point{0, 0}},
		{name: "inside buffer of neighbour", z: 1, x: 0, y: 0, want: &orb.Point{8192, 8192}},
		{name: "far away", z: 4, x: 0, y: 0},
		{name: "beyond max zoom", z: 25, x: 0, y: 0},
		{name: "row out of range", z: 1, x: 0, y: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := idx.GetTile(tt.z, tt.x, tt.y)
			if tt.want == nil {
				if tile != nil {
					t.Fatalf("GetTile(%d,%d,%d) = %d features, want nil", tt.z, tt.x, tt.y, len(tile.Features))
				}
				return
			}
			if tile == nil || len(tile.Features) != 1 {
				t.Fatalf("GetTile(%d,%d,%d) expected one feature, got %v", tt.z, tt.x, tt.y, tile)
			}
			f := tile.Features[0]
			if p, ok := f.Geometry.(orb.Point); !ok || p != *tt.want {
				t.Errorf("geometry = %v, want %v", f.Geometry, *tt.want)
			}
			if f.ID != "a" || f.Properties["name"] != "null island" {
				t.Errorf("feature id/properties not carried: %v %v", f.ID, f.Properties)
			}
		})
	}
}

func TestGetTileWrapsX(t *testing.T) {
	idx, err := New(collection(newTestFeature(1.0, orb.Point{100, 10}, nil)), DefaultOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	a := idx.GetTile(1, 1, 0)
	b := idx.GetTile(1, 3, 0)
	if a == nil || b == nil {
		t.Fatalf("expected tiles, got %v and %v", a, b)
	}
	if a.Features[0].Geometry != b.Features[0].Geometry {
		t.Errorf("wrapped tile differs: %v vs %v", a.Features[0].Geometry, b.Features[0].Geometry)
	}
}

func TestGetTileAntimeridianBuffer(t *testing.T) {
	opts := Options{MaxZoom: 14, Extent: 4096, Buffer: 64}
	idx, err := New(collection(newTestFeature("east", orb.Point{179.9, 10}, nil)), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}

	east := idx.GetTile(1, 1, 0)
	if east == nil || len(east.Features) != 1 {
		t.Fatalf("expected the point in 1/1/0, got %v", east)
	}
	if p := east.Features[0].Geometry.(orb.Point); p[0] < 4096-64 || p[0] > 4096 {
		t.Errorf("point in 1/1/0 at %v, want near the east edge", p)
	}

	west := idx.GetTile(1, 0, 0)
	if west == nil || len(west.Features) != 1 {
		t.Fatalf("expected the wrapped point in the buffer of 1/0/0, got %v", west)
	}
	if p := west.Features[0].Geometry.(orb.Point); p[0] >= 0 || p[0] < -64 {
		t.Errorf("wrapped point at %v, want inside the west buffer", p)
	}
	if west.Features[0].ID != "east" {
		t.Errorf("wrapped copy id = %v", west.Features[0].ID)
	}

	// far from both edges: no copy
	mid, err := New(collection(newTestFeature("mid", orb.Point{100, 10}, nil)), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if tile := mid.GetTile(1, 0, 0); tile != nil {
		t.Errorf("expected no features in 1/0/0, got %d", len(tile.Features))
	}
}

func TestClipCacheBounded(t *testing.T) {
	idx, err := build(collection(newTestFeature("a", orb.Point{0, 0}, nil)), DefaultOptions(), 8)
	if err != nil {
		t.Fatalf("build() error: %v", err)
	}

	for z := uint32(0); z <= 12; z++ {
		n := uint32(1) << z
		idx.GetTile(z, n/2, n/2)
		idx.GetTile(z, n/2-1, n/2-1)
	}
	if got := idx.cache.Len(false); got > 8 {
		t.Errorf("cache holds %d tiles, want at most 8", got)
	}

	// evicted ancestors are clipped again
	if tile := idx.GetTile(1, 1, 1); tile == nil {
		t.Error("expected the point in 1/1/1 after eviction")
	}
}

func TestGetTileConcurrent(t *testing.T) {
	square := orb.Polygon{{{-10, -10}, {-10, 10}, {10, 10}, {10, -10}, {-10, -10}}}
	idx, err := New(collection(newTestFeature("sq", square, nil)), DefaultOptions())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	const workers = 8
	results := make([][]orb.Geometry, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for z := uint32(0); z <= 6; z++ {
				n := uint32(1) << z
				if tile := idx.GetTile(z, n/2, n/2); tile != nil {
					results[w] = append(results[w], tile.Features[0].Geometry)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		if len(results[w]) != len(results[0]) {
			t.Fatalf("worker %d saw %d tiles, worker 0 saw %d", w, len(results[w]), len(results[0]))
		}
		for i := range results[w] {
			if !orb.Equal(results[w][i], results[0][i]) {
				t.Errorf("worker %d tile %d differs", w, i)
			}
		}
	}
}

func TestGetTilePolygonClipped(t *testing.T) {
	square := orb.Polygon{{{-10, -10}, {-10, 10}, {10, 10}, {10, -10}, {-10, -10}}}
	idx, err := New(collection(newTestFeature("sq", square, nil)), Options{MaxZoom: 14, Extent: 4096, Buffer: 64})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	tile := idx.GetTile(3, 4, 4)
	if tile == nil {
		t.Fatal("expected a tile south-east of the origin")
	}
	poly, ok := tile.Features[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("expected polygon, got %T", tile.Features[0].Geometry)
	}
	bound := poly.Bound()
	if bound.Min[0] < -64 || bound.Min[1] < -64 {
		t.Errorf("polygon not clipped to buffer: %v", bound)
	}
	if poly[0].Orientation() != orb.CCW {
		t.Errorf("outer ring orientation = %v, want positive area", poly[0].Orientation())
	}

	if tile := idx.GetTile(3, 0, 0); tile != nil {
		t.Errorf("expected no features in 3/0/0, got %d", len(tile.Features))
	}
}

func TestSimplifyByZoom(t *testing.T) {
	var line orb.LineString
	for i := 0; i <= 100; i++ {
		y := 0.0
		if i%2 == 1 {
			y = 0.0001
		}
		line = append(line, orb.Point{float64(i) * 0.01, y})
	}
	idx, err := New(collection(newTestFeature(nil, line, nil)), Options{MaxZoom: 14, Extent: 4096, Buffer: 64, Tolerance: 3})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	low := idx.GetTile(0, 0, 0)
	if low == nil {
		t.Fatal("expected root tile")
	}
	ls, ok := low.Features[0].Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("expected line, got %T", low.Features[0].Geometry)
	}
	if len(ls) >= len(line) {
		t.Errorf("expected simplification at zoom 0, got %d points", len(ls))
	}
}

func TestGenerateIDAndCollections(t *testing.T) {
	geom := orb.Collection{orb.Point{1, 1}, orb.LineString{{1, 1}, {2, 2}}}
	opts := DefaultOptions()
	opts.GenerateID = true
	idx, err := New(collection(newTestFeature("x", orb.Point{0, 0}, nil), newTestFeature("y", geom, nil)), opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
	tile := idx.GetTile(0, 0, 0)
	if tile == nil || len(tile.Features) != 3 {
		t.Fatalf("expected 3 features, got %v", tile)
	}
	if tile.Features[0].ID != 0.0 || tile.Features[2].ID != 1.0 {
		t.Errorf("generated ids = %v, %v", tile.Features[0].ID, tile.Features[2].ID)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: DefaultOptions()},
		{name: "zero extent", opts: Options{MaxZoom: 5}, wantErr: true},
		{name: "zoom too deep", opts: Options{MaxZoom: 30, Extent: 4096}, wantErr: true},
		{name: "negative buffer", opts: Options{Extent: 4096, Buffer: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
