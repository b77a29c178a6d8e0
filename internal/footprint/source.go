package footprint

import (
	"context"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/grid"
)

// Source yields building footprints intersecting a lon/lat bounding box,
// reprojected to target. An empty bbox selects every footprint.
type Source interface {
	Footprints(ctx context.Context, bbox grid.BBox, target crs.CRS) ([]*geom.Polygon, error)
}

// GeoJSONSource serves the industrial buildings of a GeoJSON
// FeatureCollection in EPSG:4326. The file is read and classified once; the
// result is shared read-only by every caller.
type GeoJSONSource struct {
	path string
	proj *crs.Projector

	once      sync.Once
	buildings []orb.Polygon
	err       error
}

// NewGeoJSONSource returns a source for path. Nothing is read until the
// first query.
func NewGeoJSONSource(path string) *GeoJSONSource {
	return &GeoJSONSource{path: path, proj: crs.NewProjector()}
}

func (s *GeoJSONSource) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.err = eris.Wrapf(err, "footprint: read %s", s.path)
		return
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		s.err = eris.Wrapf(err, "footprint: parse %s", s.path)
		return
	}
	s.buildings = Classify(fc.Features)
	zap.L().Info("footprint: loaded industrial buildings",
		zap.String("path", s.path),
		zap.Int("features", len(fc.Features)),
		zap.Int("industrial", len(s.buildings)),
	)
}

// Footprints implements Source.
func (s *GeoJSONSource) Footprints(ctx context.Context, bbox grid.BBox, target crs.CRS) ([]*geom.Polygon, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}

	filter := !bbox.IsEmpty()
	query := orb.Bound{Min: orb.Point{bbox.MinX, bbox.MinY}, Max: orb.Point{bbox.MaxX, bbox.MaxY}}

	var out []*geom.Polygon
	for _, b := range s.buildings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter && !query.Intersects(b.Bound()) {
			continue
		}
		p, err := s.reproject(toGeom(b), target)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *GeoJSONSource) reproject(p *geom.Polygon, target crs.CRS) (*geom.Polygon, error) {
	if target == crs.WGS84 {
		return p, nil
	}
	g, err := s.proj.TransformGeom(p, crs.WGS84, target)
	if err != nil {
		return nil, eris.Wrap(err, "footprint: reproject")
	}
	return g.(*geom.Polygon), nil
}

func toGeom(p orb.Polygon) *geom.Polygon {
	var flat []float64
	ends := make([]int, 0, len(p))
	for _, ring := range p {
		for _, pt := range ring {
			flat = append(flat, pt[0], pt[1])
		}
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(int(crs.WGS84))
}

// Cache hands out one GeoJSONSource per path, so every worker shares a
// single parsed copy of each file.
type Cache struct {
	mu      sync.Mutex
	sources map[string]*GeoJSONSource
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{sources: make(map[string]*GeoJSONSource)}
}

// Open returns the source for path, creating it on first use.
func (c *Cache) Open(path string) Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sources[path]
	if !ok {
		s = NewGeoJSONSource(path)
		c.sources[path] = s
	}
	return s
}
