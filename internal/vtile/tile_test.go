package vtile

import (
	"math"
	"testing"
)

func TestLatLonToTile(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     uint32
		wantX    uint32
		wantY    uint32
	}{
		{name: "London at zoom 10", lat: 51.5074, lon: -0.1278, zoom: 10, wantX: 511, wantY: 340},
		{name: "Monaco at zoom 12", lat: 43.7384, lon: 7.4246, zoom: 12, wantX: 2132, wantY: 1493},
		{name: "New York at zoom 10", lat: 40.7128, lon: -74.0060, zoom: 10, wantX: 301, wantY: 385},
		{name: "Origin at zoom 0", lat: 0, lon: 0, zoom: 0, wantX: 0, wantY: 0},
		{name: "Origin at zoom 1", lat: 0, lon: 0, zoom: 1, wantX: 1, wantY: 1},
		{name: "Antimeridian clamps", lat: -89, lon: 180, zoom: 2, wantX: 3, wantY: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := LatLonToTile(tt.lat, tt.lon, tt.zoom)
			if tile.X != tt.wantX || tile.Y != tt.wantY {
				t.Errorf("LatLonToTile(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tt.lat, tt.lon, tt.zoom, tile.X, tile.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestTilesInBBox(t *testing.T) {
	tiles := TilesInBBox(BBox{MinLon: -180, MinLat: -85, MaxLon: 180, MaxLat: 85}, 0, 1)
	if len(tiles) != 5 {
		t.Fatalf("expected 5 tiles, got %d: %v", len(tiles), tiles)
	}
	if tiles[0] != (TileID{}) {
		t.Errorf("first tile = %v, want 0/0/0", tiles[0])
	}
}

func TestParseTileID(t *testing.T) {
	tests := []struct {
		in      string
		want    TileID
		wantErr bool
	}{
		{in: "3/4/2", want: TileID{Z: 3, X: 4, Y: 2}},
		{in: "0/0/0", want: TileID{}},
		{in: "1/2/0", wantErr: true},
		{in: "1/a/0", wantErr: true},
		{in: "1/0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTileID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTileID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTileID(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	for _, lat := range []float64{-80, -45.5, 0, 12.25, 60, 85} {
		got := YLat(LatY(lat))
		if math.Abs(got-lat) > 1e-9 {
			t.Errorf("YLat(LatY(%f)) = %f", lat, got)
		}
	}
	for _, lng := range []float64{-180, -1, 0, 33.3, 180} {
		if got := XLng(LngX(lng)); math.Abs(got-lng) > 1e-9 {
			t.Errorf("XLng(LngX(%f)) = %f", lng, got)
		}
	}
}

func TestParent(t *testing.T) {
	if got := (TileID{Z: 3, X: 5, Y: 7}).Parent(); got != (TileID{Z: 2, X: 2, Y: 3}) {
		t.Errorf("Parent() = %v", got)
	}
	if got := (TileID{}).Parent(); got != (TileID{}) {
		t.Errorf("root Parent() = %v", got)
	}
}
