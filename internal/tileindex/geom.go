package tileindex

import "github.com/paulmach/orb"

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}

// cleanup drops repeated pixels and parts that no longer have a shape after
// rounding. It returns nil when nothing is left.
func cleanup(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return v
	case orb.MultiPoint:
		if len(v) == 0 {
			return nil
		}
		return v
	case orb.LineString:
		if ls := cleanLine(v); ls != nil {
			return ls
		}
	case orb.MultiLineString:
		var out orb.MultiLineString
		for _, ls := range v {
			if c := cleanLine(ls); c != nil {
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			return out
		}
	case orb.Ring:
		if r := cleanRing(v); r != nil {
			return orb.Polygon{r}
		}
	case orb.Polygon:
		if p := cleanPolygon(v); p != nil {
			return p
		}
	case orb.MultiPolygon:
		var out orb.MultiPolygon
		for _, p := range v {
			if c := cleanPolygon(p); c != nil {
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func dedupe(points []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(points))
	for i, p := range points {
		if i > 0 && p.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cleanLine(ls orb.LineString) orb.LineString {
	out := orb.LineString(dedupe(ls))
	if len(out) < 2 {
		return nil
	}
	return out
}

func cleanRing(r orb.Ring) orb.Ring {
	out := orb.Ring(dedupe(r))
	if len(out) > 0 && !out[0].Equal(out[len(out)-1]) {
		out = append(out, out[0])
	}
	if len(out) < 4 || out.Orientation() == 0 {
		return nil
	}
	return out
}

// cleanPolygon drops collapsed holes; a collapsed outer ring drops the polygon.
func cleanPolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 {
		return nil
	}
	outer := cleanRing(p[0])
	if outer == nil {
		return nil
	}
	out := orb.Polygon{outer}
	for _, hole := range p[1:] {
		if h := cleanRing(hole); h != nil {
			out = append(out, h)
		}
	}
	return out
}
