package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/store"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Tile and score the source grid",
	Long:  "Split the source grid into tiles, compute configured attributes per tile and load cells into the attributes table.",
}

func init() { rootCmd.AddCommand(gridCmd) }

// gridPool connects to the configured database.
func gridPool(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	if c.Store.DatabaseURL == "" {
		return nil, eris.New("grid: no database_url configured (set store.database_url)")
	}
	pool, err := store.NewPool(ctx, c.Store.DatabaseURL, &c.Store.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "grid: connect")
	}
	zap.L().Debug("connected to database")
	return pool, nil
}

// gridOpener returns the opener for the configured grid driver. pool is
// only used by the PostGIS driver and may be nil otherwise.
func gridOpener(c *config.Config, pool *pgxpool.Pool) (grid.Opener, error) {
	switch c.Grid.Driver {
	case config.DriverShapefile:
		return grid.ShapefileOpener(c.Grid.Fields, c.Grid.CRS), nil
	case config.DriverPostGIS:
		if pool == nil {
			return nil, eris.New("grid: postgis driver needs a database connection")
		}
		return grid.PostGISOpener(pool, c.Grid.Fields, c.Grid.CRS), nil
	}
	return nil, eris.Errorf("grid: unknown driver %q", c.Grid.Driver)
}

// gridBounds opens the grid once to read its envelope.
func gridBounds(ctx context.Context, open grid.Opener, handle string) (grid.BBox, error) {
	src, err := open(ctx, handle)
	if err != nil {
		return grid.BBox{}, eris.Wrapf(err, "grid: open %s", handle)
	}
	defer func() { _ = src.Close() }()

	b, err := src.Bounds(ctx)
	if err != nil {
		return grid.BBox{}, eris.Wrapf(err, "grid: bounds of %s", handle)
	}
	return b, nil
}
