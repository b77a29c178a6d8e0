package catchment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/sitescore/internal/grid"
)

func TestJoin_IndustrialFootprintScenario(t *testing.T) {
	cell := &grid.Row{
		ID:       "1kmN0E0",
		Geometry: geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 2, 2, 2, 2, 0, 0, 0}, []int{10}),
	}
	tile := grid.WholeTile([]*grid.Row{cell}, nil)

	c := New("20min_drive", map[string]geom.T{
		"1kmN0E0": geom.NewPolygonFlat(geom.XY, []float64{0, 0, 0, 4, 4, 4, 4, 0, 0, 0}, []int{10}),
	})
	footprints := []*grid.Row{
		{ID: "b1", Geometry: square(1, 1, 1), Values: map[string]float64{"industrial_footprint": 1}},
		{ID: "b2", Geometry: geom.NewPolygonFlat(geom.XY, []float64{2, 2, 3, 2, 3, 2.5, 2, 2.5, 2, 2}, []int{10}),
			Values: map[string]float64{"industrial_footprint": 0.5}},
	}

	err := Join(tile, c, footprints, []Aggregation{{Column: "industrial_footprint", Op: Sum}})
	require.NoError(t, err)

	v, ok := cell.Value("industrial_footprint_20min_drive")
	require.True(t, ok)
	assert.InDelta(t, 1.5, v, 1e-12)
}

func TestAggregate_PointCatchmentContainsItself(t *testing.T) {
	cell := &grid.Row{ID: "a", Geometry: square(0, 0, 2), Values: map[string]float64{"pop": 7}}
	tile := grid.WholeTile([]*grid.Row{cell}, nil)

	c := New("0min", map[string]geom.T{"a": geom.NewPointFlat(geom.XY, []float64{1, 1})},
		Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))

	v, ok := cell.Value("pop_0min")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

// stripTile is a 6 x 1 row of unit cells whose valid region covers the
// middle four.
func stripTile(t *testing.T) *grid.Tile {
	t.Helper()
	rows := make([]*grid.Row, 0, 6)
	for i := 0; i < 6; i++ {
		r := &grid.Row{ID: fmt.Sprintf("c%d", i), Geometry: square(float64(i), 0, 1)}
		r.Set("pop", float64(i+1))
		rows = append(rows, r)
	}
	tile := grid.NewTile(grid.Descriptor{
		ValidRegion: grid.BBox{MinX: 1.5, MinY: 0.5, MaxX: 4.5, MaxY: 0.5},
		FullExtent:  grid.BBox{MinX: -0.5, MinY: -1, MaxX: 6.5, MaxY: 2},
	}, rows)
	require.Len(t, tile.ValidRows(), 4)
	return tile
}

// neighbourhood gives every cell a catchment covering itself and its
// direct neighbours.
func neighbourhood(tile *grid.Tile, aggs ...Aggregation) *Catchment {
	geoms := make(map[string]geom.T, len(tile.Rows))
	for i, r := range tile.Rows {
		x := float64(i)
		geoms[r.ID] = geom.NewPolygonFlat(geom.XY, []float64{
			x - 1, 0, x + 2, 0, x + 2, 1, x - 1, 1, x - 1, 0,
		}, []int{10})
	}
	return New("ring", geoms, aggs...)
}

func TestAggregate_OnlyValidCellsReceiveValues(t *testing.T) {
	tile := stripTile(t)
	c := neighbourhood(tile, Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))
	assert.Empty(t, tile.Truncated)

	want := map[string]float64{"c1": 6, "c2": 9, "c3": 12, "c4": 15}
	for _, r := range tile.Rows {
		v, ok := r.Value("pop_ring")
		if w, valid := want[r.ID]; valid {
			require.True(t, ok, r.ID)
			assert.Equal(t, w, v, r.ID)
		} else {
			assert.False(t, ok, "buffer cell %s must stay null", r.ID)
		}
	}
}

func TestAggregate_MultipleOpsOnOneColumn(t *testing.T) {
	tile := stripTile(t)
	c := neighbourhood(tile,
		Aggregation{Column: "pop", Op: Min},
		Aggregation{Column: "pop", Op: Max},
		Aggregation{Column: "pop", Op: Count},
	)
	require.NoError(t, Aggregate(tile, c))

	r, _ := tile.Row("c2")
	assert.Equal(t, map[string]float64{
		"pop":            3,
		"pop_min_ring":   2,
		"pop_max_ring":   4,
		"pop_count_ring": 3,
	}, r.Values)
}

func TestAggregate_Idempotent(t *testing.T) {
	tile := stripTile(t)
	c := neighbourhood(tile, Aggregation{Column: "pop", Op: Mean})

	require.NoError(t, Aggregate(tile, c))
	first := make(map[string]map[string]float64)
	for _, r := range tile.Rows {
		first[r.ID] = copyValues(r.Values)
	}

	require.NoError(t, Aggregate(tile, c))
	for _, r := range tile.Rows {
		assert.Equal(t, first[r.ID], r.Values, r.ID)
	}
}

func TestAggregate_StaleColumnsDropped(t *testing.T) {
	tile := stripTile(t)
	for _, r := range tile.Rows {
		r.Set("pop_ring", -1)
	}
	// Only c2 has a catchment now; every other stale value must go.
	c := New("ring", map[string]geom.T{"c2": square(2, 0, 1)}, Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))

	for _, r := range tile.Rows {
		v, ok := r.Value("pop_ring")
		if r.ID == "c2" {
			assert.Equal(t, 3.0, v)
			continue
		}
		assert.False(t, ok, r.ID)
	}
}

func TestAggregate_NoMatchesIsNull(t *testing.T) {
	tile := stripTile(t)
	c := New("far", map[string]geom.T{"c2": square(100, 100, 1)}, Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))

	r, _ := tile.Row("c2")
	_, ok := r.Value("pop_far")
	assert.False(t, ok)
}

func TestAggregate_SkipsNullValues(t *testing.T) {
	tile := stripTile(t)
	for _, id := range []string{"c1", "c3"} {
		r, _ := tile.Row(id)
		r.Drop("pop")
	}
	c := neighbourhood(tile, Aggregation{Column: "pop", Op: Mean}, Aggregation{Column: "pop", Op: Count})
	require.NoError(t, Aggregate(tile, c))

	r, _ := tile.Row("c2")
	mean, _ := r.Value("pop_mean_ring")
	count, _ := r.Value("pop_count_ring")
	assert.Equal(t, 3.0, mean)
	assert.Equal(t, 1.0, count)
}

func TestAggregate_HoleExcludesCentroid(t *testing.T) {
	cell := &grid.Row{ID: "a", Geometry: square(4, 4, 2), Values: map[string]float64{"pop": 1}}
	other := &grid.Row{ID: "b", Geometry: square(0, 0, 1), Values: map[string]float64{"pop": 10}}
	tile := grid.WholeTile([]*grid.Row{cell, other}, nil)

	donut := geom.NewPolygonFlat(geom.XY, []float64{
		-1, -1, 11, -1, 11, 11, -1, 11, -1, -1,
		3, 3, 3, 7, 7, 7, 7, 3, 3, 3,
	}, []int{10, 20})
	c := New("donut", map[string]geom.T{"a": donut}, Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))

	v, ok := cell.Value("pop_donut")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestAggregate_BoundaryOverrunWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	tile := stripTile(t)
	geoms := map[string]geom.T{
		"c1": square(0, 0, 1),
		"c2": square(-5, 0, 8),
		"c4": square(4, 0, 5),
	}
	c := New("wide", geoms, Aggregation{Column: "pop", Op: Sum})
	require.NoError(t, Aggregate(tile, c))

	assert.Equal(t, map[string]bool{"c2": true, "c4": true}, tile.Truncated)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "wide", fields["catchment"])
	assert.Equal(t, int64(2), fields["cells"])

	// Values are still computed for truncated cells.
	r, _ := tile.Row("c2")
	v, ok := r.Value("pop_wide")
	require.True(t, ok)
	assert.Equal(t, 6.0, v)
}

func TestAggregate_NoAggregations(t *testing.T) {
	tile := stripTile(t)
	require.NoError(t, Aggregate(tile, New("ring", nil)))
	r, _ := tile.Row("c1")
	assert.Equal(t, []string{"pop"}, r.Columns())
}

func TestAggregate_RowWithoutGeometry(t *testing.T) {
	tile := grid.WholeTile([]*grid.Row{{ID: "a", Geometry: square(0, 0, 1)}}, nil)
	c := New("x", map[string]geom.T{"a": square(0, 0, 1)}, Aggregation{Column: "pop", Op: Sum})
	err := Join(tile, c, []*grid.Row{{ID: "broken"}}, c.Aggregations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index candidates for x")
}

func copyValues(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
