// Package nearest answers k-th nearest neighbour queries over 2D points in
// either supported CRS. Projected points are indexed as-is; geographic points
// are lifted onto the unit sphere so that straight-line distance in the index
// orders candidates the same way great-circle distance does.
package nearest

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/grid"
)

// NoMatch is the index reported when there is no k-th candidate.
const NoMatch = -1

const (
	minChildren = 25
	maxChildren = 50
	pointTol    = 1e-12
)

type entry struct {
	idx    int
	coords rtreego.Point
	rect   rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index is an R-tree over a fixed candidate set.
type Index struct {
	crs  crs.CRS
	tree *rtreego.Rtree
	size int
}

// NewIndex builds an index over candidates given in the native units of c.
func NewIndex(candidates [][2]float64, c crs.CRS) (*Index, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dim := 2
	if c.Geographic() {
		dim = 3
	}
	tree := rtreego.NewTree(dim, minChildren, maxChildren)
	for i, p := range candidates {
		pt := lift(p, c)
		tree.Insert(&entry{idx: i, coords: pt, rect: pt.ToRect(pointTol)})
	}
	return &Index{crs: c, tree: tree, size: len(candidates)}, nil
}

// Len returns the number of indexed candidates.
func (ix *Index) Len() int { return ix.size }

// Query returns the index and distance of the k-th nearest candidate to p.
// Distances are in native units for projected systems and meters for
// geographic ones. Without a k-th candidate it returns NoMatch and +Inf.
func (ix *Index) Query(p [2]float64, k int) (int, float64) {
	if k < 1 || k > ix.size {
		return NoMatch, math.Inf(1)
	}
	q := lift(p, ix.crs)

	type hit struct {
		idx  int
		dist float64
	}
	hits := make([]hit, 0, k)
	for _, s := range ix.tree.NearestNeighbors(k, q) {
		e, ok := s.(*entry)
		if !ok || e == nil {
			continue
		}
		hits = append(hits, hit{idx: e.idx, dist: euclid(q, e.coords)})
	}
	if len(hits) < k {
		return NoMatch, math.Inf(1)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].dist == hits[j].dist {
			return hits[i].idx < hits[j].idx
		}
		return hits[i].dist < hits[j].dist
	})
	h := hits[k-1]
	return h.idx, ix.distance(h.dist)
}

func (ix *Index) distance(d float64) float64 {
	if !ix.crs.Geographic() {
		return d
	}
	return 2 * math.Asin(math.Min(d/2, 1)) * crs.EarthRadius
}

// Nearest returns, for every source point, the index and distance of its
// k-th nearest candidate. An empty candidate set is not an error: every
// source point gets NoMatch and +Inf.
func Nearest(src, candidates [][2]float64, k int, c crs.CRS) ([]int, []float64, error) {
	if k < 1 {
		return nil, nil, eris.Errorf("nearest: k must be at least 1, got %d", k)
	}
	idx := make([]int, len(src))
	dist := make([]float64, len(src))
	if len(candidates) == 0 {
		for i := range src {
			idx[i], dist[i] = NoMatch, math.Inf(1)
		}
		return idx, dist, nil
	}

	ix, err := NewIndex(candidates, c)
	if err != nil {
		return nil, nil, err
	}
	for i, p := range src {
		idx[i], dist[i] = ix.Query(p, k)
	}
	return idx, dist, nil
}

// NearestGeometry reduces both sides to centroids and returns the nearest
// right-hand geometry for each left-hand one, nil where there is none.
func NearestGeometry(left, right []geom.T, c crs.CRS) ([]geom.T, []float64, error) {
	idx, dist, err := nearestCentroids(left, len(right), func() ([][2]float64, error) {
		return crs.CentroidCoords(right, c)
	}, c)
	if err != nil {
		return nil, nil, err
	}
	out := make([]geom.T, len(idx))
	for i, j := range idx {
		if j != NoMatch {
			out[i] = right[j]
		}
	}
	return out, dist, nil
}

// NearestRows is NearestGeometry for tabular right-hand data: the matched
// rows are returned whole. Row centroids are used when already computed.
func NearestRows(left []geom.T, right []*grid.Row, c crs.CRS) ([]*grid.Row, []float64, error) {
	idx, dist, err := nearestCentroids(left, len(right), func() ([][2]float64, error) {
		out := make([][2]float64, len(right))
		for i, r := range right {
			if err := grid.EnsureCentroid(r); err != nil {
				return nil, err
			}
			out[i] = [2]float64{r.Centroid[0], r.Centroid[1]}
		}
		return out, nil
	}, c)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*grid.Row, len(idx))
	for i, j := range idx {
		if j != NoMatch {
			out[i] = right[j]
		}
	}
	return out, dist, nil
}

func nearestCentroids(left []geom.T, nRight int, right func() ([][2]float64, error), c crs.CRS) ([]int, []float64, error) {
	if nRight == 0 {
		return Nearest(make([][2]float64, len(left)), nil, 1, c)
	}
	src, err := crs.CentroidCoords(left, c)
	if err != nil {
		return nil, nil, err
	}
	candidates, err := right()
	if err != nil {
		return nil, nil, err
	}
	return Nearest(src, candidates, 1, c)
}

// lift maps a coordinate into index space: unchanged for projected systems,
// a unit-sphere vector for geographic ones.
func lift(p [2]float64, c crs.CRS) rtreego.Point {
	if !c.Geographic() {
		return rtreego.Point{p[0], p[1]}
	}
	r := crs.Radians(p)
	lon, lat := r[0], r[1]
	return rtreego.Point{
		math.Cos(lat) * math.Cos(lon),
		math.Cos(lat) * math.Sin(lon),
		math.Sin(lat),
	}
}

func euclid(a, b rtreego.Point) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
