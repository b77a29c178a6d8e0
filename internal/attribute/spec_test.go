package attribute

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitescore/internal/catchment"
)

func TestSpec_CatchmentDistance(t *testing.T) {
	assert.Equal(t, 500.0, Spec{Distance: 500, TravelTime: 1200}.CatchmentDistance())
	assert.InDelta(t, 40000.0, Spec{TravelTime: 1200}.CatchmentDistance(), 1e-9)
	assert.Zero(t, Spec{}.CatchmentDistance())
}

func TestSpec_CatchmentName(t *testing.T) {
	assert.Equal(t, "isochrone", Spec{Catchment: "isochrone", TravelTime: 1200}.CatchmentName())
	assert.Equal(t, "20min_drive", Spec{TravelTime: 1200}.CatchmentName())
	assert.Equal(t, "1min_drive", Spec{TravelTime: 89}.CatchmentName())
	assert.Empty(t, Spec{}.CatchmentName())
}

func TestSpec_ColumnName(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{"explicit", Spec{Kind: KindCatchmentSum, Name: "pop20", Column: "TOT_P_2011"}, "pop20"},
		{"catchment sum", Spec{Kind: KindCatchmentSum, Column: "TOT_P_2011", TravelTime: 1200}, "tot_p_2011_20min_drive"},
		{"industrial footprint", Spec{Kind: KindIndustrialFootprint, Catchment: "20min_drive"}, "industrial_footprint_20min_drive"},
		{"nearest distance", Spec{Kind: KindNearestDistance}, "industrial_distance"},
		{"unknown", Spec{Kind: "other"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.ColumnName())
		})
	}
}

func TestSpec_Aggregation(t *testing.T) {
	op, err := Spec{}.aggregation()
	require.NoError(t, err)
	assert.Equal(t, catchment.Sum, op)

	op, err = Spec{Op: "median"}.aggregation()
	require.NoError(t, err)
	assert.Equal(t, catchment.Median, op)

	_, err = Spec{Op: "mode"}.aggregation()
	assert.Error(t, err)
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name: "catchment sum",
			spec: Spec{Kind: KindCatchmentSum, Column: "TOT_P_2011", TravelTime: 1200},
		},
		{
			name: "industrial footprint",
			spec: Spec{Kind: KindIndustrialFootprint, Catchment: "20min_drive", Footprints: "osm.geojson"},
		},
		{
			name: "nearest distance without catchment",
			spec: Spec{Kind: KindNearestDistance, Footprints: "osm.geojson"},
		},
		{
			name:    "unknown kind",
			spec:    Spec{Kind: "other", Name: "x"},
			wantErr: "unknown kind",
		},
		{
			name:    "invalid column name",
			spec:    Spec{Kind: KindCatchmentSum, Name: "Pop-20", Column: "pop", Catchment: "c"},
			wantErr: "invalid column name",
		},
		{
			name:    "missing column",
			spec:    Spec{Kind: KindCatchmentSum, Name: "pop_c", Catchment: "c"},
			wantErr: "column is required",
		},
		{
			name:    "bad op",
			spec:    Spec{Kind: KindCatchmentSum, Column: "pop", Catchment: "c", Op: "mode"},
			wantErr: "unknown aggregation",
		},
		{
			name:    "missing footprints",
			spec:    Spec{Kind: KindIndustrialFootprint, Catchment: "c"},
			wantErr: "footprints file is required",
		},
		{
			name:    "missing catchment",
			spec:    Spec{Kind: KindIndustrialFootprint, Name: "ind", Footprints: "osm.geojson"},
			wantErr: "catchment name or travel time is required",
		},
		{
			name:    "negative distance",
			spec:    Spec{Kind: KindCatchmentSum, Column: "pop", Catchment: "c", Distance: -1},
			wantErr: "must not be negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
attributes:
  - kind: catchment_sum
    column: TOT_P_2011
    op: mean
    travel_time: 1200
  - kind: industrial_footprint
    title: Industrial footprint
    catchment: 20min_drive
    distance: 40000
    footprints: osm.geojson
`), 0o644))

	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, Spec{Kind: KindCatchmentSum, Column: "TOT_P_2011", Op: "mean", TravelTime: 1200}, specs[0])
	assert.Equal(t, "Industrial footprint", specs[1].Title)
	assert.Equal(t, "industrial_footprint_20min_drive", specs[1].ColumnName())
}

func TestLoadSpecs_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSpecs(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("attributes:\n  - kind: catchment_sum\n"), 0o644))
	_, err = LoadSpecs(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attributes[0]")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("attributes: [\n"), 0o644))
	_, err = LoadSpecs(broken)
	assert.Error(t, err)
}
