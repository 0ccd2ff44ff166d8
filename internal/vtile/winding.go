package vtile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Rewind orients polygon rings in place: outer rings get outer orientation
// and holes the opposite one. Orientation is measured on raw coordinates with
// y growing upward.
func Rewind(g orb.Geometry, outer orb.Orientation) {
	switch v := g.(type) {
	case orb.Ring:
		orient(v, outer)
	case orb.Polygon:
		rewindPolygon(v, outer)
	case orb.MultiPolygon:
		for _, p := range v {
			rewindPolygon(p, outer)
		}
	case orb.Collection:
		for _, c := range v {
			Rewind(c, outer)
		}
	}
}

func rewindPolygon(p orb.Polygon, outer orb.Orientation) {
	for i, r := range p {
		if i == 0 {
			orient(r, outer)
		} else {
			orient(r, -outer)
		}
	}
}

func orient(r orb.Ring, want orb.Orientation) {
	if o := r.Orientation(); o != 0 && o != want {
		r.Reverse()
	}
}

// RewindCollection normalizes every feature of fc so outer rings are
// clockwise and holes counter-clockwise in lon/lat space. Once projected to
// tile pixels, where y grows downward, this yields exterior rings with
// positive area.
func RewindCollection(fc *geojson.FeatureCollection) {
	for _, f := range fc.Features {
		if f != nil && f.Geometry != nil {
			Rewind(f.Geometry, orb.CW)
		}
	}
}
