package grid

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/crs"
)

// Source is a read-only, bounding-box queryable grid.
type Source interface {
	// Bounds returns the envelope of every row in the source.
	Bounds(ctx context.Context) (BBox, error)

	// Rows returns the rows whose envelope intersects bbox.
	Rows(ctx context.Context, bbox BBox) ([]*Row, error)

	// Close releases any handles held by the source.
	Close() error
}

// Opener opens a fresh Source for a handle (a file path, table name, ...).
// Every worker opens its own so no reader state is shared.
type Opener func(ctx context.Context, handle string) (Source, error)

// MemorySource serves rows from memory. Rows are shared read-only; Rows
// returns copies so callers may add columns freely.
type MemorySource struct {
	rows []*Row
}

// NewMemorySource fills missing centroids and returns a source over rows.
func NewMemorySource(rows []*Row) (*MemorySource, error) {
	for _, r := range rows {
		if err := EnsureCentroid(r); err != nil {
			return nil, err
		}
	}
	return &MemorySource{rows: rows}, nil
}

// MemoryOpener returns an Opener that ignores the handle and serves src.
func MemoryOpener(src *MemorySource) Opener {
	return func(context.Context, string) (Source, error) {
		return src, nil
	}
}

// Bounds implements Source.
func (s *MemorySource) Bounds(context.Context) (BBox, error) {
	b := EmptyBBox()
	for _, r := range s.rows {
		b = b.Extend(BoundsOf(r.Geometry))
	}
	return b, nil
}

// Rows implements Source.
func (s *MemorySource) Rows(ctx context.Context, bbox BBox) ([]*Row, error) {
	var out []*Row
	for _, r := range s.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if bbox.Intersects(BoundsOf(r.Geometry)) {
			out = append(out, cloneRow(r))
		}
	}
	return out, nil
}

// Close implements Source.
func (s *MemorySource) Close() error { return nil }

// EnsureCentroid computes the row centroid from its geometry when unset.
func EnsureCentroid(r *Row) error {
	if r.Centroid != nil {
		return nil
	}
	if r.Geometry == nil {
		return eris.Errorf("grid: row %s has no geometry", r.ID)
	}
	c, err := crs.Centroid(r.Geometry)
	if err != nil {
		return eris.Wrapf(err, "grid: centroid of row %s", r.ID)
	}
	r.Centroid = c
	return nil
}

func cloneRow(r *Row) *Row {
	c := *r
	c.Centroid = append(geom.Coord(nil), r.Centroid...)
	if r.Values != nil {
		c.Values = make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			c.Values[k] = v
		}
	}
	return &c
}
