// Package footprint extracts industrial building footprints from OSM-derived
// GeoJSON and serves them reprojected to the grid CRS.
package footprint

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// BuildingTags are the building=* values that mark a building industrial on
// its own.
var BuildingTags = []string{
	"industrial", "warehouse", "manufacture", "factory",
	"depot", "works", "workshop", "industrial_unit",
}

// ConditionalLanduseTags are landuse=* values that make an industrial zone
// only when the zone also holds an industrially tagged building.
var ConditionalLanduseTags = []string{"commercial", "industrial_park", "harbour", "logistics", "port"}

type way struct {
	tags  geojson.Properties
	poly  orb.Polygon
	bound orb.Bound
}

// Classify returns the industrial buildings among features, in input order
// and without duplicates. A building is industrial when it carries one of
// BuildingTags, or when it intersects an industrial landuse zone. Zones are
// landuse=industrial, or one of ConditionalLanduseTags containing at least
// one building from the first rule.
func Classify(features []*geojson.Feature) []orb.Polygon {
	var buildings, zones []way
	for _, f := range features {
		for _, poly := range polygons(f.Geometry) {
			w := way{tags: f.Properties, poly: poly, bound: poly.Bound()}
			if _, ok := f.Properties["building"]; ok {
				buildings = append(buildings, w)
			}
			if _, ok := f.Properties["landuse"]; ok {
				zones = append(zones, w)
			}
		}
	}

	tagged := make([]bool, len(buildings))
	var industrial []way
	for i, b := range buildings {
		if slices.Contains(BuildingTags, b.tags.MustString("building", "")) {
			tagged[i] = true
			industrial = append(industrial, b)
		}
	}

	var active []way
	for _, z := range zones {
		switch landuse := z.tags.MustString("landuse", ""); {
		case landuse == "industrial":
			active = append(active, z)
		case slices.Contains(ConditionalLanduseTags, landuse):
			for _, b := range industrial {
				if intersects(b, z) {
					active = append(active, z)
					break
				}
			}
		}
	}

	var out []orb.Polygon
	for i, b := range buildings {
		if tagged[i] {
			out = append(out, b.poly)
			continue
		}
		for _, z := range active {
			if intersects(b, z) {
				out = append(out, b.poly)
				break
			}
		}
	}
	return out
}

// polygons extracts the areas of a feature. Closed line strings are OSM ways
// exported without area detection. Rings with fewer than three distinct
// nodes are dropped.
func polygons(g orb.Geometry) []orb.Polygon {
	var out []orb.Polygon
	add := func(p orb.Polygon) {
		if len(p) > 0 && len(p[0]) >= 4 {
			out = append(out, p)
		}
	}
	switch t := g.(type) {
	case orb.Polygon:
		add(t)
	case orb.MultiPolygon:
		for _, p := range t {
			add(p)
		}
	case orb.LineString:
		if len(t) >= 4 && t[0] == t[len(t)-1] {
			add(orb.Polygon{orb.Ring(t)})
		}
	}
	return out
}

// intersects reports whether two polygons share any point: a vertex of one
// lies in the other, or their outer rings cross.
func intersects(a, b way) bool {
	if !a.bound.Intersects(b.bound) {
		return false
	}
	for _, p := range a.poly[0] {
		if planar.PolygonContains(b.poly, p) {
			return true
		}
	}
	for _, p := range b.poly[0] {
		if planar.PolygonContains(a.poly, p) {
			return true
		}
	}
	return ringsCross(a.poly[0], b.poly[0])
}

func ringsCross(r, s orb.Ring) bool {
	for i := 0; i+1 < len(r); i++ {
		for j := 0; j+1 < len(s); j++ {
			if segmentsCross(r[i], r[i+1], s[j], s[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
