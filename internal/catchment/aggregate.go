package catchment

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/grid"
)

// PointBufferRadius is the radius, in native units, of the disc that
// replaces a catchment geometry that collapsed to a point.
const PointBufferRadius = 1.0

const (
	pointBufferSegments = 16
	minRectSide         = 1e-9
)

// Aggregate joins c against the tile's own rows and writes c's aggregations
// onto the valid cells.
func Aggregate(tile *grid.Tile, c *Catchment) error {
	return Join(tile, c, tile.Rows, c.Aggregations)
}

// Join aggregates the candidate rows whose centroid lies inside each valid
// cell's catchment geometry. Existing target columns are dropped from every
// tile row first. Cells whose catchment matches nothing stay null.
func Join(tile *grid.Tile, c *Catchment, candidates []*grid.Row, aggs []Aggregation) error {
	if len(aggs) == 0 {
		return nil
	}
	log := zap.L().With(
		zap.String("component", "catchment.aggregate"),
		zap.String("tile", tile.Key()),
		zap.String("catchment", c.Name),
	)

	idx, err := newCentroidIndex(candidates)
	if err != nil {
		return eris.Wrapf(err, "catchment: index candidates for %s", c.Name)
	}

	targets := make([]string, len(aggs))
	for i, a := range aggs {
		targets[i] = targetName(c.Name, aggs, a)
	}

	results := make(map[string]map[string]float64)
	var overrun, joined int
	for i, cell := range tile.Rows {
		if !tile.Valid[i] {
			continue
		}
		g, ok := c.Geometries[cell.ID]
		if !ok || g == nil {
			continue
		}
		g = bufferPoint(g)

		env := grid.BoundsOf(g)
		if !tile.Unbounded && !tile.FullExtent.Contains(env) {
			overrun++
			tile.Truncated[cell.ID] = true
		}

		matched := idx.within(g, env)
		if len(matched) == 0 {
			continue
		}
		joined++
		vals := make(map[string]float64, len(aggs))
		for j, a := range aggs {
			if v, ok := a.Op.Apply(values(matched, a.Column)); ok {
				vals[targets[j]] = v
			}
		}
		results[cell.ID] = vals
	}

	if overrun > 0 {
		log.Warn("catchment extends beyond tile buffer, edge values may be truncated",
			zap.Int("cells", overrun),
			zap.String("full_extent", tile.FullExtent.String()),
		)
	}

	tile.DropColumns(targets...)
	for _, cell := range tile.Rows {
		for col, v := range results[cell.ID] {
			cell.Set(col, v)
		}
	}

	log.Debug("aggregated catchment",
		zap.Int("joined", joined),
		zap.Strings("columns", targets),
	)
	return nil
}

// bufferPoint replaces a point geometry with a small disc so the cell it
// came from still contains its own centroid.
func bufferPoint(g geom.T) geom.T {
	p, ok := g.(*geom.Point)
	if !ok || p.Empty() {
		return g
	}
	return grid.Circle(geom.Coord{p.X(), p.Y()}, PointBufferRadius, pointBufferSegments).SetSRID(p.SRID())
}

func values(rows []*grid.Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Value(col); ok {
			out = append(out, v)
		}
	}
	return out
}

type candidate struct {
	pos  int
	row  *grid.Row
	rect rtreego.Rect
}

func (c *candidate) Bounds() rtreego.Rect { return c.rect }

// centroidIndex is an R-tree over candidate row centroids.
type centroidIndex struct {
	tree *rtreego.Rtree
}

func newCentroidIndex(rows []*grid.Row) (*centroidIndex, error) {
	tree := rtreego.NewTree(2, 25, 50)
	for i, r := range rows {
		if err := grid.EnsureCentroid(r); err != nil {
			return nil, err
		}
		pt := rtreego.Point{r.Centroid[0], r.Centroid[1]}
		tree.Insert(&candidate{pos: i, row: r, rect: pt.ToRect(minRectSide)})
	}
	return &centroidIndex{tree: tree}, nil
}

// within returns the rows whose centroid is inside g, in candidate order.
func (ix *centroidIndex) within(g geom.T, env grid.BBox) []*grid.Row {
	if env.IsEmpty() {
		return nil
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{env.MinX, env.MinY},
		[]float64{max(env.Width(), minRectSide), max(env.Height(), minRectSide)},
	)
	if err != nil {
		return nil
	}

	var hits []*candidate
	for _, s := range ix.tree.SearchIntersect(rect) {
		c := s.(*candidate)
		if grid.ContainsPoint(g, c.row.Centroid) {
			hits = append(hits, c)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]*grid.Row, len(hits))
	for i, h := range hits {
		out[i] = h.row
	}
	return out
}
