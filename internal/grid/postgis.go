package grid

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/sitescore/internal/db"
)

// PostGISSource reads grid cells from a PostGIS table. Column names follow
// the FieldMap, lower-cased; the geometry column is always "geom".
type PostGISSource struct {
	pool   db.Pool
	table  string
	fields FieldMap
	srid   int
}

// NewPostGISSource validates the table and column names up front since they
// are interpolated into SQL.
func NewPostGISSource(pool db.Pool, table string, fields FieldMap, srid int) (*PostGISSource, error) {
	for _, part := range strings.Split(table, ".") {
		if !db.ValidIdentifier(part) {
			return nil, eris.Errorf("grid: invalid table name %q", table)
		}
	}
	for _, col := range fields.columns() {
		if !db.ValidIdentifier(strings.ToLower(col)) {
			return nil, eris.Errorf("grid: invalid column name %q", col)
		}
	}
	return &PostGISSource{pool: pool, table: table, fields: fields, srid: srid}, nil
}

// PostGISOpener serves the same pool for every handle; the handle is the
// table name.
func PostGISOpener(pool db.Pool, fields FieldMap, srid int) Opener {
	return func(_ context.Context, handle string) (Source, error) {
		return NewPostGISSource(pool, handle, fields, srid)
	}
}

// Bounds implements Source.
func (s *PostGISSource) Bounds(ctx context.Context) (BBox, error) {
	q := fmt.Sprintf(
		"SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (SELECT ST_Extent(geom) AS e FROM %s) t",
		s.table,
	)
	var minX, minY, maxX, maxY *float64
	if err := s.pool.QueryRow(ctx, q).Scan(&minX, &minY, &maxX, &maxY); err != nil {
		return BBox{}, eris.Wrapf(err, "grid: extent of %s", s.table)
	}
	if minX == nil || minY == nil || maxX == nil || maxY == nil {
		return EmptyBBox(), nil
	}
	return BBox{MinX: *minX, MinY: *minY, MaxX: *maxX, MaxY: *maxY}, nil
}

// Rows implements Source using the && index operator.
func (s *PostGISSource) Rows(ctx context.Context, bbox BBox) ([]*Row, error) {
	cols := []string{strings.ToLower(s.fields.ID), orNull(s.fields.Country)}
	for _, r := range s.fields.Regions {
		cols = append(cols, orNull(r))
	}
	cols = append(cols, "ST_AsEWKB(geom)")
	for _, v := range s.fields.Values {
		cols = append(cols, strings.ToLower(v))
	}
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, %d)",
		strings.Join(cols, ", "), s.table, s.srid,
	)

	rows, err := s.pool.Query(ctx, q, bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: query %s", s.table)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		row, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "grid: iterate %s", s.table)
	}
	return out, nil
}

func (s *PostGISSource) scan(rows pgx.Rows) (*Row, error) {
	var (
		id, country *string
		regions     [RegionLevels]*string
		wkb         []byte
	)
	values := make([]*float64, len(s.fields.Values))
	dest := []any{&id, &country}
	for i := range regions {
		dest = append(dest, &regions[i])
	}
	dest = append(dest, &wkb)
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, eris.Wrapf(err, "grid: scan %s", s.table)
	}
	if id == nil {
		return nil, eris.Errorf("grid: %s row without id", s.table)
	}

	g, err := ewkb.Unmarshal(wkb)
	if err != nil {
		return nil, eris.Wrapf(err, "grid: decode geometry of %s", *id)
	}

	row := &Row{ID: *id, Geometry: g}
	if country != nil {
		row.Country = NormalizeCode(*country)
	}
	for i, r := range regions {
		if r != nil {
			row.Regions[i] = NormalizeCode(*r)
		}
	}
	for i, v := range values {
		if v != nil {
			row.Set(s.fields.Values[i], *v)
		}
	}
	return row, nil
}

// Close implements Source. The pool is owned by the caller.
func (s *PostGISSource) Close() error { return nil }

func (f FieldMap) columns() []string {
	cols := []string{f.ID}
	if f.Country != "" {
		cols = append(cols, f.Country)
	}
	for _, r := range f.Regions {
		if r != "" {
			cols = append(cols, r)
		}
	}
	return append(cols, f.Values...)
}

func orNull(col string) string {
	if col == "" {
		return "NULL"
	}
	return strings.ToLower(col)
}
