package vtile

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// LngX maps a longitude to the unit web-mercator x in [0, 1].
func LngX(lng float64) float64 {
	return lng/360 + 0.5
}

// LatY maps a latitude to the unit web-mercator y in [0, 1], clamped at the poles.
func LatY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// XLng is the inverse of LngX.
func XLng(x float64) float64 {
	return (x - 0.5) * 360
}

// YLat is the inverse of LatY.
func YLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}

// ToUnit projects a lon/lat point into unit mercator space.
func ToUnit(p orb.Point) orb.Point {
	return orb.Point{LngX(p[0]), LatY(p[1])}
}

// FromUnit projects a unit mercator point back to lon/lat.
func FromUnit(p orb.Point) orb.Point {
	return orb.Point{XLng(p[0]), YLat(p[1])}
}

// ProjectUnit returns a copy of g in unit mercator space. g is not modified.
func ProjectUnit(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), ToUnit)
}
