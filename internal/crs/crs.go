// Package crs handles the two coordinate reference systems the grid engine
// supports: the ETRS89 Lambert azimuthal equal-area projection (EPSG:3035)
// and geographic longitude/latitude (EPSG:4326).
package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// CRS is an EPSG code.
type CRS int

const (
	// LAEAEurope is ETRS89-extended / LAEA Europe, meters.
	LAEAEurope CRS = 3035
	// WGS84 is geographic longitude/latitude in degrees.
	WGS84 CRS = 4326
)

// EarthRadius is the mean Earth radius in meters used to turn angular
// distances into lengths.
const EarthRadius = 6371000.0

// ErrUnsupportedCRS is returned for any EPSG code other than 3035 and 4326.
var ErrUnsupportedCRS = eris.New("crs: unsupported coordinate reference system")

// String returns the EPSG identifier, e.g. "EPSG:3035".
func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", int(c))
}

// Validate returns ErrUnsupportedCRS unless c is one of the supported systems.
func (c CRS) Validate() error {
	switch c {
	case LAEAEurope, WGS84:
		return nil
	default:
		return eris.Wrapf(ErrUnsupportedCRS, "crs: %s", c)
	}
}

// Geographic reports whether coordinates are longitude/latitude degrees.
func (c CRS) Geographic() bool {
	return c == WGS84
}

// Parse accepts "EPSG:3035", "epsg:4326" or a bare code.
func Parse(s string) (CRS, error) {
	code := strings.TrimSpace(s)
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, eris.Wrapf(ErrUnsupportedCRS, "crs: parse %q", s)
	}
	c := CRS(n)
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return c, nil
}

// Centroid returns the centroid of g. Points are returned as-is.
func Centroid(g geom.T) (geom.Coord, error) {
	if p, ok := g.(*geom.Point); ok {
		return geom.Coord{p.X(), p.Y()}, nil
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return nil, eris.Wrap(err, "crs: centroid")
	}
	return c, nil
}

// CentroidCoords reduces each geometry to its centroid in the native units
// of c. The CRS is checked first so callers get ErrUnsupportedCRS before any
// geometry work happens.
func CentroidCoords(geoms []geom.T, c CRS) ([][2]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([][2]float64, len(geoms))
	for i, g := range geoms {
		if g == nil {
			return nil, eris.Errorf("crs: nil geometry at index %d", i)
		}
		cen, err := Centroid(g)
		if err != nil {
			return nil, eris.Wrapf(err, "crs: geometry %d", i)
		}
		out[i] = [2]float64{cen[0], cen[1]}
	}
	return out, nil
}

// Radians converts a lon/lat pair in degrees to radians.
func Radians(p [2]float64) [2]float64 {
	return [2]float64{p[0] * math.Pi / 180, p[1] * math.Pi / 180}
}
