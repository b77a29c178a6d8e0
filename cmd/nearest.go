package main

import (
	"io"
	"math"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/nearest"
)

var nearestCmd = &cobra.Command{
	Use:   "nearest <source.geojson> <candidates.geojson>",
	Short: "Find the nearest candidate feature for every source feature",
	Long:  "Reduces both feature collections to centroids and writes the source collection back with nearest_index and nearest_distance properties. Distances are meters for EPSG:4326 and native units for EPSG:3035; features without a match get no properties.",
	Args:  cobra.ExactArgs(2),
	RunE:  runNearest,
}

func init() {
	nearestCmd.Flags().String("crs", "EPSG:4326", "coordinate reference system of both files")
	nearestCmd.Flags().IntP("k", "k", 1, "return the k-th nearest candidate")
	rootCmd.AddCommand(nearestCmd)
}

func runNearest(cmd *cobra.Command, args []string) error {
	crsFlag, _ := cmd.Flags().GetString("crs")
	k, _ := cmd.Flags().GetInt("k")

	c, err := crs.Parse(crsFlag)
	if err != nil {
		return err
	}
	src, err := readFeatures(args[0])
	if err != nil {
		return err
	}
	candidates, err := readFeatures(args[1])
	if err != nil {
		return err
	}
	return writeNearest(cmd.OutOrStdout(), src, candidates, k, c)
}

func readFeatures(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "nearest: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "nearest: parse %s", path)
	}
	return fc, nil
}

func centroids(fc *geojson.FeatureCollection) [][2]float64 {
	out := make([][2]float64, len(fc.Features))
	for i, f := range fc.Features {
		p, _ := planar.CentroidArea(f.Geometry)
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

// writeNearest annotates src with its nearest candidates and writes it as
// GeoJSON.
func writeNearest(w io.Writer, src, candidates *geojson.FeatureCollection, k int, c crs.CRS) error {
	idx, dist, err := nearest.Nearest(centroids(src), centroids(candidates), k, c)
	if err != nil {
		return err
	}
	for i, f := range src.Features {
		if idx[i] == nearest.NoMatch || math.IsInf(dist[i], 1) {
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties["nearest_index"] = idx[i]
		f.Properties["nearest_distance"] = dist[i]
	}

	data, err := src.MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "nearest: encode result")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "nearest: write result")
	}
	return nil
}
