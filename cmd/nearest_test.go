package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitescore/internal/crs"
)

func points(pts ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range pts {
		fc.Append(geojson.NewFeature(p))
	}
	return fc
}

func TestWriteNearest_Projected(t *testing.T) {
	src := points(orb.Point{0, 0})
	candidates := points(orb.Point{0, 1}, orb.Point{3, 3})

	var buf bytes.Buffer
	require.NoError(t, writeNearest(&buf, src, candidates, 1, crs.LAEAEurope))

	out, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, out.Features, 1)
	assert.Equal(t, 0.0, out.Features[0].Properties.MustFloat64("nearest_index", -1))
	assert.InDelta(t, 1.0, out.Features[0].Properties.MustFloat64("nearest_distance", -1), 1e-12)
}

func TestWriteNearest_Geographic(t *testing.T) {
	src := points(orb.Point{0, 0})
	candidates := points(orb.Point{0, 1})

	var buf bytes.Buffer
	require.NoError(t, writeNearest(&buf, src, candidates, 1, crs.WGS84))

	out, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	assert.InDelta(t, 111195.0, out.Features[0].Properties.MustFloat64("nearest_distance", -1), 1)
}

func TestWriteNearest_NoCandidates(t *testing.T) {
	src := points(orb.Point{0, 0}, orb.Point{5, 5})

	var buf bytes.Buffer
	require.NoError(t, writeNearest(&buf, src, points(), 1, crs.LAEAEurope))

	out, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, out.Features, 2)
	for _, f := range out.Features {
		_, ok := f.Properties["nearest_distance"]
		assert.False(t, ok)
	}
}

func TestWriteNearest_UnsupportedCRS(t *testing.T) {
	err := writeNearest(&bytes.Buffer{}, points(orb.Point{0, 0}), points(orb.Point{1, 1}), 1, crs.CRS(27700))
	assert.ErrorIs(t, err, crs.ErrUnsupportedCRS)
}

func TestReadFeatures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.geojson")
	data, err := points(orb.Point{1, 2}).MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(good, data, 0644))

	fc, err := readFeatures(good)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, [][2]float64{{1, 2}}, centroids(fc))

	bad := filepath.Join(dir, "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = readFeatures(bad)
	assert.Error(t, err)

	_, err = readFeatures(filepath.Join(dir, "missing.geojson"))
	assert.Error(t, err)
}
