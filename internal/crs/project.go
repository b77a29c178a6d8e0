package crs

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// GRS80 ellipsoid and EPSG:3035 projection parameters.
const (
	grs80A    = 6378137.0
	grs80InvF = 298.257222101

	laeaLat0      = 52.0
	laeaLon0      = 10.0
	laeaFalseEast = 4321000.0
	laeaFalseNrth = 3210000.0
)

// Projector converts coordinates between LAEAEurope and WGS84. ETRS89 and
// WGS84 are treated as coincident, which is within a meter over Europe.
type Projector struct {
	e, e2      float64
	qp         float64
	rq         float64
	d          float64
	sinB0      float64
	cosB0      float64
	lon0       float64
	apa1, apa2 float64
	apa3       float64
}

// NewProjector precomputes the ellipsoid constants for EPSG:3035.
func NewProjector() *Projector {
	f := 1 / grs80InvF
	e2 := f * (2 - f)
	e := math.Sqrt(e2)
	p := &Projector{e: e, e2: e2, lon0: laeaLon0 * math.Pi / 180}

	p.qp = p.q(math.Pi / 2)
	phi0 := laeaLat0 * math.Pi / 180
	beta0 := math.Asin(p.q(phi0) / p.qp)
	p.sinB0, p.cosB0 = math.Sin(beta0), math.Cos(beta0)
	p.rq = grs80A * math.Sqrt(p.qp/2)
	p.d = grs80A * (math.Cos(phi0) / math.Sqrt(1-e2*math.Sin(phi0)*math.Sin(phi0))) / (p.rq * p.cosB0)

	e4 := e2 * e2
	e6 := e4 * e2
	p.apa1 = e2/3 + 31*e4/180 + 517*e6/5040
	p.apa2 = 23*e4/360 + 251*e6/3780
	p.apa3 = 761 * e6 / 45360
	return p
}

func (p *Projector) q(phi float64) float64 {
	s := math.Sin(phi)
	return (1 - p.e2) * (s/(1-p.e2*s*s) - (1/(2*p.e))*math.Log((1-p.e*s)/(1+p.e*s)))
}

// Forward projects lon/lat degrees to EPSG:3035 easting/northing.
func (p *Projector) Forward(lon, lat float64) (float64, float64) {
	phi := lat * math.Pi / 180
	dlon := lon*math.Pi/180 - p.lon0
	beta := math.Asin(p.q(phi) / p.qp)
	sinB, cosB := math.Sin(beta), math.Cos(beta)
	b := p.rq * math.Sqrt(2/(1+p.sinB0*sinB+p.cosB0*cosB*math.Cos(dlon)))
	east := laeaFalseEast + b*p.d*cosB*math.Sin(dlon)
	north := laeaFalseNrth + (b/p.d)*(p.cosB0*sinB-p.sinB0*cosB*math.Cos(dlon))
	return east, north
}

// Inverse maps EPSG:3035 easting/northing back to lon/lat degrees.
func (p *Projector) Inverse(east, north float64) (float64, float64) {
	x := (east - laeaFalseEast) / p.d
	y := p.d * (north - laeaFalseNrth)
	rho := math.Hypot(x, y)
	if rho == 0 {
		return laeaLon0, laeaLat0
	}
	c := 2 * math.Asin(rho/(2*p.rq))
	sinC, cosC := math.Sin(c), math.Cos(c)
	beta := math.Asin(cosC*p.sinB0 + y*sinC*p.cosB0/rho)
	lon := p.lon0 + math.Atan2((east-laeaFalseEast)*sinC, p.d*rho*p.cosB0*cosC-p.d*p.d*(north-laeaFalseNrth)*p.sinB0*sinC)
	lat := beta + p.apa1*math.Sin(2*beta) + p.apa2*math.Sin(4*beta) + p.apa3*math.Sin(6*beta)
	return lon * 180 / math.Pi, lat * 180 / math.Pi
}

// Transform converts a single coordinate pair between supported systems.
func (p *Projector) Transform(from, to CRS, x, y float64) (float64, float64, error) {
	if err := from.Validate(); err != nil {
		return 0, 0, err
	}
	if err := to.Validate(); err != nil {
		return 0, 0, err
	}
	switch {
	case from == to:
		return x, y, nil
	case from == WGS84:
		e, n := p.Forward(x, y)
		return e, n, nil
	default:
		lon, lat := p.Inverse(x, y)
		return lon, lat, nil
	}
}

// TransformGeom returns a reprojected copy of g. Points, polygons and
// multipolygons are supported, which covers grid cells, catchments and
// building footprints.
func (p *Projector) TransformGeom(g geom.T, from, to CRS) (geom.T, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	flat, err := p.transformFlat(g.FlatCoords(), g.Stride(), from, to)
	if err != nil {
		return nil, err
	}
	srid := int(to)
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), flat).SetSRID(srid), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), flat, t.Ends()).SetSRID(srid), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(t.Layout(), flat, t.Endss()).SetSRID(srid), nil
	default:
		return nil, eris.Errorf("crs: cannot transform %T", g)
	}
}

func (p *Projector) transformFlat(in []float64, stride int, from, to CRS) ([]float64, error) {
	out := make([]float64, len(in))
	copy(out, in)
	for i := 0; i+1 < len(out); i += stride {
		x, y, err := p.Transform(from, to, out[i], out[i+1])
		if err != nil {
			return nil, err
		}
		out[i], out[i+1] = x, y
	}
	return out, nil
}
