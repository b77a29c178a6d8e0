package grid

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// ContainsPoint reports whether p lies in the interior of g. Points on the
// boundary or inside a hole are not contained. Only polygonal geometries
// can contain anything.
func ContainsPoint(g geom.T, p geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

func polygonContains(poly *geom.Polygon, p geom.Coord) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	layout := poly.Layout()
	if xy.LocatePointInRing(layout, p, poly.LinearRing(0).FlatCoords()) != location.Interior {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, p, poly.LinearRing(i).FlatCoords()) != location.Exterior {
			return false
		}
	}
	return true
}

// Circle approximates a disc of the given radius with a closed polygon.
func Circle(center geom.Coord, radius float64, segments int) *geom.Polygon {
	if segments < 8 {
		segments = 8
	}
	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		flat = append(flat, center[0]+radius*math.Cos(a), center[1]+radius*math.Sin(a))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// Area returns the planar area of polygonal geometries and zero otherwise.
// Ring orientation is ignored: the shell counts positive and every hole
// negative whichever way they are wound.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var a float64
		for i := 0; i < t.NumPolygons(); i++ {
			a += polygonArea(t.Polygon(i))
		}
		return a
	}
	return 0
}

func polygonArea(p *geom.Polygon) float64 {
	var a float64
	for i := 0; i < p.NumLinearRings(); i++ {
		r := math.Abs(p.LinearRing(i).Area())
		if i == 0 {
			a += r
		} else {
			a -= r
		}
	}
	return a
}

// ToMultiPolygon wraps a polygon so the attributes table only ever stores
// one geometry type.
func ToMultiPolygon(g geom.T) (*geom.MultiPolygon, bool) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, true
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout()).SetSRID(t.SRID())
		if err := mp.Push(t); err != nil {
			return nil, false
		}
		return mp, true
	}
	return nil, false
}
