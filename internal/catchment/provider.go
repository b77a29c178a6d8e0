package catchment

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/grid"
)

// Provider supplies catchment geometries for a set of cells. Routing-based
// providers live outside this module; anything returning a reachable area
// per cell ID fits.
type Provider interface {
	Catchment(ctx context.Context, name string, cells []*grid.Row) (map[string]geom.T, error)
}

// DefaultSegments is the circle resolution used by RadiusProvider.
const DefaultSegments = 64

// RadiusProvider approximates a catchment as a disc of fixed radius around
// each cell centroid. A zero radius yields the centroid itself.
type RadiusProvider struct {
	Distance float64 // meters
	Segments int

	// CRS of the cells. Geographic grids get a geodesic circle in degrees;
	// anything else is treated as projected meters.
	CRS crs.CRS
}

// Catchment implements Provider.
func (p RadiusProvider) Catchment(ctx context.Context, name string, cells []*grid.Row) (map[string]geom.T, error) {
	if p.Distance < 0 {
		return nil, eris.Errorf("catchment: %s: negative radius %g", name, p.Distance)
	}
	segments := p.Segments
	if segments == 0 {
		segments = DefaultSegments
	}

	out := make(map[string]geom.T, len(cells))
	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := grid.EnsureCentroid(cell); err != nil {
			return nil, eris.Wrapf(err, "catchment: %s", name)
		}
		srid := 0
		if cell.Geometry != nil {
			srid = cell.Geometry.SRID()
		}
		if p.Distance == 0 {
			out[cell.ID] = geom.NewPointFlat(geom.XY, []float64{cell.Centroid[0], cell.Centroid[1]}).SetSRID(srid)
			continue
		}
		if p.CRS.Geographic() {
			out[cell.ID] = geodesicCircle(cell.Centroid, p.Distance, segments).SetSRID(srid)
			continue
		}
		out[cell.ID] = grid.Circle(cell.Centroid, p.Distance, segments).SetSRID(srid)
	}
	return out, nil
}

// geodesicCircle returns the lon/lat ring of points d meters from center on
// the sphere.
func geodesicCircle(center geom.Coord, d float64, segments int) *geom.Polygon {
	if segments < 8 {
		segments = 8
	}
	c := orb.Point{center[0], center[1]}
	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		p := geo.PointAtBearingAndDistance(c, 360*float64(i)/float64(segments), d)
		flat = append(flat, p[0], p[1])
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// StaticProvider serves precomputed geometries keyed by cell ID, e.g. areas
// produced by an external routing run. Cells without an entry get none.
type StaticProvider map[string]geom.T

// Catchment implements Provider.
func (p StaticProvider) Catchment(_ context.Context, _ string, cells []*grid.Row) (map[string]geom.T, error) {
	out := make(map[string]geom.T, len(cells))
	for _, cell := range cells {
		if g, ok := p[cell.ID]; ok {
			out[cell.ID] = g
		}
	}
	return out, nil
}
