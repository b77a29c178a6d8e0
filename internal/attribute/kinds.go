package attribute

import (
	"context"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/catchment"
	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/footprint"
	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/nearest"
)

// footprintAreaColumn holds each building's area on the candidate rows built
// from footprints.
const footprintAreaColumn = "footprint_area"

// catchmentSum aggregates a grid column over each cell's catchment, e.g. the
// population reachable within a 20 minute drive.
type catchmentSum struct {
	base
	provider catchment.Provider
	op       catchment.Op
}

// ApplyTo registers the aggregation on the tile's catchment. Values are
// written when the registry is computed, so sums sharing a catchment are
// joined in one pass.
func (a *catchmentSum) ApplyTo(ctx context.Context, tile *grid.Tile, reg *catchment.Registry) error {
	agg := catchment.Aggregation{Column: a.spec.Column, Op: a.op, Target: a.name}
	_, err := applyCatchment(ctx, tile, reg, a.provider, a.spec.CatchmentName(), agg)
	return err
}

// industrialFootprint sums the area of industrial buildings whose centroid
// lies inside each cell's catchment.
type industrialFootprint struct {
	base
	provider   catchment.Provider
	footprints footprint.Source
	proj       *crs.Projector
}

func (a *industrialFootprint) ApplyTo(ctx context.Context, tile *grid.Tile, reg *catchment.Registry) error {
	c, err := applyCatchment(ctx, tile, reg, a.provider, a.spec.CatchmentName())
	if err != nil {
		return err
	}

	bounds, err := geographicBounds(a.proj, c.Geometries, a.crs)
	if err != nil {
		return eris.Wrapf(err, "attribute: %s: catchment bounds", a.name)
	}
	if bounds.IsEmpty() {
		tile.DropColumns(a.name)
		return nil
	}
	buildings, err := a.footprints.Footprints(ctx, bounds, a.crs)
	if err != nil {
		return eris.Wrapf(err, "attribute: %s: load footprints", a.name)
	}

	candidates := make([]*grid.Row, len(buildings))
	for i, b := range buildings {
		r := &grid.Row{ID: "building_" + strconv.Itoa(i), Geometry: b}
		r.Set(footprintAreaColumn, grid.Area(b))
		candidates[i] = r
	}
	zap.L().Debug("attribute: footprint candidates",
		zap.String("attribute", a.name),
		zap.String("tile", tile.Key()),
		zap.Int("buildings", len(candidates)),
	)

	agg := catchment.Aggregation{Column: footprintAreaColumn, Op: catchment.Sum, Target: a.name}
	return catchment.Join(tile, c, candidates, []catchment.Aggregation{agg})
}

// nearestDistance is the distance from each cell centroid to the closest
// industrial building centroid, null when none lies within Distance (if set).
type nearestDistance struct {
	base
	footprints footprint.Source
	proj       *crs.Projector
}

func (a *nearestDistance) ApplyTo(ctx context.Context, tile *grid.Tile, _ *catchment.Registry) error {
	bounds := grid.EmptyBBox()
	if d := a.spec.CatchmentDistance(); d > 0 {
		search := expandMeters(tile.FullExtent, d, a.crs)
		b, err := geographicBounds(a.proj, map[string]geom.T{"extent": search.Polygon()}, a.crs)
		if err != nil {
			return eris.Wrapf(err, "attribute: %s: search bounds", a.name)
		}
		bounds = b
	}
	buildings, err := a.footprints.Footprints(ctx, bounds, a.crs)
	if err != nil {
		return eris.Wrapf(err, "attribute: %s: load footprints", a.name)
	}

	cells := tile.ValidRows()
	left := make([]geom.T, len(cells))
	for i, cell := range cells {
		left[i] = cell.Geometry
	}
	right := make([]geom.T, len(buildings))
	for i, b := range buildings {
		right[i] = b
	}
	_, dist, err := nearest.NearestGeometry(left, right, a.crs)
	if err != nil {
		return eris.Wrapf(err, "attribute: %s", a.name)
	}

	limit := a.spec.CatchmentDistance()
	tile.DropColumns(a.name)
	for i, cell := range cells {
		d := dist[i]
		if math.IsInf(d, 1) || (limit > 0 && d > limit) {
			continue
		}
		cell.Set(a.name, d)
	}
	return nil
}

// expandMeters grows b by d meters. Geographic boxes are widened in degrees,
// with the longitude margin scaled for the box's highest latitude.
func expandMeters(b grid.BBox, d float64, c crs.CRS) grid.BBox {
	if !c.Geographic() {
		return b.Expand(d)
	}
	dy := d / (crs.EarthRadius * math.Pi / 180)
	lat := math.Min(math.Max(math.Abs(b.MinY), math.Abs(b.MaxY))+dy, 89)
	dx := dy / math.Cos(lat*math.Pi/180)
	return grid.BBox{
		MinX: math.Max(b.MinX-dx, -180),
		MinY: math.Max(b.MinY-dy, -90),
		MaxX: math.Min(b.MaxX+dx, 180),
		MaxY: math.Min(b.MaxY+dy, 90),
	}
}
