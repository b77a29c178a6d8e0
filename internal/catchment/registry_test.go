package catchment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/grid"
)

func TestRegistry_SameNameIsOneCatchment(t *testing.T) {
	r := NewRegistry()
	first := New("20min_drive", map[string]geom.T{"a": square(0, 0, 1)}, Aggregation{Column: "pop", Op: Sum})
	second := New("20min_drive", map[string]geom.T{"b": square(1, 0, 1)}, Aggregation{Column: "area", Op: Sum})

	got := r.Apply(first)
	assert.Same(t, first, got)

	got = r.Apply(second)
	assert.Same(t, first, got, "second apply repoints to the registered catchment")
	assert.Equal(t, 2, got.Len())
	assert.Contains(t, got.Geometries, "a")
	assert.Contains(t, got.Geometries, "b")
	assert.Equal(t, []string{"20min_drive"}, r.Names())

	stored, ok := r.Get("20min_drive")
	require.True(t, ok)
	assert.Same(t, first, stored)
}

func TestRegistry_ReapplySameInstance(t *testing.T) {
	r := NewRegistry()
	c := New("x", map[string]geom.T{"a": square(0, 0, 1)}, Aggregation{Column: "pop", Op: Sum})
	r.Apply(c)
	r.Apply(c)
	assert.Equal(t, 1, c.Len())
	assert.Len(t, c.Aggregations, 1)
}

func TestRegistry_DistinctNames(t *testing.T) {
	r := NewRegistry()
	r.Apply(New("20min_drive", nil))
	r.Apply(New("10km", nil))
	assert.Equal(t, []string{"20min_drive", "10km"}, r.Names())

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Compute(t *testing.T) {
	rows := []*grid.Row{
		{ID: "a", Geometry: square(0, 0, 1), Values: map[string]float64{"pop": 2}},
		{ID: "b", Geometry: square(1, 0, 1), Values: map[string]float64{"pop": 3}},
	}
	tile := grid.WholeTile(rows, nil)

	r := NewRegistry()
	r.Apply(New("wide", map[string]geom.T{"a": square(-1, -1, 4), "b": square(-1, -1, 4)},
		Aggregation{Column: "pop", Op: Sum}))
	r.Apply(New("narrow", map[string]geom.T{"a": square(0, 0, 1)},
		Aggregation{Column: "pop", Op: Sum}))
	r.Apply(New("geometry_only", map[string]geom.T{"a": square(0, 0, 1)}))

	require.NoError(t, r.Compute(tile))

	a, _ := tile.Row("a")
	b, _ := tile.Row("b")
	assert.Equal(t, map[string]float64{"pop": 2, "pop_wide": 5, "pop_narrow": 2}, a.Values)
	assert.Equal(t, map[string]float64{"pop": 3, "pop_wide": 5}, b.Values)
}
