package grid

import (
	"context"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// FieldMap names the attribute fields of a grid file.
type FieldMap struct {
	ID      string               `mapstructure:"id"`
	Country string               `mapstructure:"country"`
	Regions [RegionLevels]string `mapstructure:"regions"`
	Values  []string             `mapstructure:"values"`
}

// DefaultFieldMap matches the Eurostat 1 km population grid.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ID:      "GRD_ID",
		Country: "CNTR_ID",
		Regions: [RegionLevels]string{"NUTS_0_ID", "NUTS_1_ID", "NUTS_2_ID", "NUTS_3_ID"},
		Values:  []string{"TOT_P_2011"},
	}
}

// ShapefileSource reads a polygon grid shapefile. Each Rows call streams the
// file and keeps only records whose bounding box intersects the query, so
// memory stays proportional to the query, not the grid.
type ShapefileSource struct {
	path   string
	fields FieldMap
	srid   int
}

// NewShapefileSource returns a source for path. Nothing is opened until the
// first query.
func NewShapefileSource(path string, fields FieldMap, srid int) *ShapefileSource {
	return &ShapefileSource{path: path, fields: fields, srid: srid}
}

// ShapefileOpener opens a ShapefileSource per handle.
func ShapefileOpener(fields FieldMap, srid int) Opener {
	return func(_ context.Context, handle string) (Source, error) {
		return NewShapefileSource(handle, fields, srid), nil
	}
}

// Bounds implements Source using the shapefile header.
func (s *ShapefileSource) Bounds(context.Context) (BBox, error) {
	reader, err := shp.Open(s.path)
	if err != nil {
		return BBox{}, eris.Wrapf(err, "grid: open shapefile %s", s.path)
	}
	defer func() { _ = reader.Close() }()

	b := reader.BBox()
	return BBox{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}, nil
}

// Rows implements Source.
func (s *ShapefileSource) Rows(ctx context.Context, bbox BBox) ([]*Row, error) {
	reader, err := shp.Open(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: open shapefile %s", s.path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	attr := func(name string) string {
		idx, ok := fieldIdx[strings.ToUpper(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var rows []*Row
	var skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, shape := reader.Shape()
		if shape == nil {
			skipped++
			continue
		}
		sb := shape.BBox()
		if !bbox.Intersects(BBox{MinX: sb.MinX, MinY: sb.MinY, MaxX: sb.MaxX, MaxY: sb.MaxY}) {
			continue
		}
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		g := shapeToMultiPolygon(poly, s.srid)
		if g == nil {
			skipped++
			continue
		}

		row := &Row{
			ID:       attr(s.fields.ID),
			Country:  NormalizeCode(attr(s.fields.Country)),
			Geometry: g,
		}
		for i, name := range s.fields.Regions {
			if name != "" {
				row.Regions[i] = NormalizeCode(attr(name))
			}
		}
		for _, name := range s.fields.Values {
			raw := attr(name)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "grid: parse %s for %s", name, row.ID)
			}
			row.Set(name, v)
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		zap.L().Debug("grid: skipped shapefile records",
			zap.String("path", s.path),
			zap.Int("skipped", skipped),
		)
	}
	return rows, nil
}

// Close implements Source. Readers are opened per query.
func (s *ShapefileSource) Close() error { return nil }

// shapeToMultiPolygon converts a shapefile polygon. Clockwise rings start a
// new polygon; counter-clockwise rings are holes of the preceding one.
func shapeToMultiPolygon(p *shp.Polygon, srid int) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("grid: skipping malformed polygon", zap.Error(err))
			}
		}
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if len(flat) < 8 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if xy.IsRingCounterClockwise(geom.XY, flat) && current != nil {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("grid: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("grid: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
