package attribute

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/catchment"
	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/footprint"
	"github.com/sells-group/sitescore/internal/grid"
)

// Attribute is a measurable fact about every cell of a tile.
type Attribute interface {
	// Name is the output column, unique per deployment.
	Name() string
	// Title is the display name.
	Title() string
	// Columns lists every column ApplyTo writes.
	Columns() []string
	// ApplyTo computes the attribute onto the tile's valid cells, or leaves
	// aggregations on a catchment in reg for reg.Compute. Catchments go
	// through reg so attributes sharing a catchment share its geometry.
	ApplyTo(ctx context.Context, tile *grid.Tile, reg *catchment.Registry) error
}

// Deps are the collaborators attributes are built with.
type Deps struct {
	// CRS of the grid.
	CRS crs.CRS

	// Catchments supplies catchment geometries. Nil means a RadiusProvider
	// with the spec's catchment distance in the grid CRS.
	Catchments catchment.Provider

	// Footprints opens a footprint source by path. Nil opens GeoJSON files
	// without sharing them.
	Footprints func(path string) footprint.Source
}

// Build constructs a fresh attribute from spec. Nothing is shared with
// attributes built earlier from the same spec.
func Build(spec Spec, deps Deps) (Attribute, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := deps.CRS.Validate(); err != nil {
		return nil, eris.Wrapf(err, "attribute: %s", spec.ColumnName())
	}
	provider := deps.Catchments
	if provider == nil {
		provider = catchment.RadiusProvider{Distance: spec.CatchmentDistance(), CRS: deps.CRS}
	}
	openFootprints := deps.Footprints
	if openFootprints == nil {
		openFootprints = func(path string) footprint.Source { return footprint.NewGeoJSONSource(path) }
	}

	b := base{spec: spec, name: spec.ColumnName(), crs: deps.CRS}
	switch spec.Kind {
	case KindCatchmentSum:
		op, _ := spec.aggregation()
		return &catchmentSum{base: b, provider: provider, op: op}, nil
	case KindIndustrialFootprint:
		return &industrialFootprint{
			base:       b,
			provider:   provider,
			footprints: openFootprints(spec.Footprints),
			proj:       crs.NewProjector(),
		}, nil
	case KindNearestDistance:
		return &nearestDistance{
			base:       b,
			footprints: openFootprints(spec.Footprints),
			proj:       crs.NewProjector(),
		}, nil
	}
	return nil, eris.Errorf("attribute: unknown kind %q", spec.Kind)
}

// BuildAll builds every spec, failing on the first invalid one.
func BuildAll(specs []Spec, deps Deps) ([]Attribute, error) {
	out := make([]Attribute, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		a, err := Build(s, deps)
		if err != nil {
			return nil, err
		}
		if seen[a.Name()] {
			return nil, eris.Errorf("attribute: duplicate attribute %q", a.Name())
		}
		seen[a.Name()] = true
		out[i] = a
	}
	return out, nil
}

type base struct {
	spec Spec
	name string
	crs  crs.CRS
}

func (b *base) Name() string { return b.name }

func (b *base) Title() string {
	if b.spec.Title != "" {
		return b.spec.Title
	}
	return b.name
}

func (b *base) Columns() []string { return []string{b.name} }

// applyCatchment requests geometries for the tile's valid cells and merges
// them into the registry. The registry's catchment is returned and must be
// used from then on.
func applyCatchment(ctx context.Context, tile *grid.Tile, reg *catchment.Registry, provider catchment.Provider, name string, aggs ...catchment.Aggregation) (*catchment.Catchment, error) {
	cells := tile.ValidRows()
	geoms, err := provider.Catchment(ctx, name, cells)
	if err != nil {
		return nil, eris.Wrapf(err, "attribute: catchment %s", name)
	}
	return reg.Apply(catchment.New(name, geoms, aggs...)), nil
}

// geographicBounds returns the lon/lat envelope of geoms given in c.
func geographicBounds(proj *crs.Projector, geoms map[string]geom.T, c crs.CRS) (grid.BBox, error) {
	b := grid.EmptyBBox()
	for _, g := range geoms {
		if c != crs.WGS84 {
			t, err := proj.TransformGeom(g, c, crs.WGS84)
			if err != nil {
				return b, err
			}
			g = t
		}
		b = b.Extend(grid.BoundsOf(g))
	}
	return b, nil
}
