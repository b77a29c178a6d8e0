package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/store"
)

var gridLoadCmd = &cobra.Command{
	Use:   "load-cells",
	Short: "Load grid cells into the attributes table",
	Long:  "Creates the attributes table if needed and COPYs every cell passing grid.valid_nuts into it, one tile at a time.",
	RunE:  runGridLoad,
}

func init() { gridCmd.AddCommand(gridLoadCmd) }

func runGridLoad(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("load"); err != nil {
		return err
	}

	pool, err := gridPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	open, err := gridOpener(cfg, pool)
	if err != nil {
		return err
	}
	attrs, err := store.NewAttributeStore(pool, cfg.Store.Table, cfg.Grid.CRS)
	if err != nil {
		return err
	}
	if err := attrs.EnsureTable(ctx); err != nil {
		return err
	}

	bounds, err := gridBounds(ctx, open, cfg.Grid.Path)
	if err != nil {
		return err
	}
	opts := cfg.Grid.SplitOptions()
	descs, err := grid.Descriptors(bounds, opts)
	if err != nil {
		return err
	}

	// Valid regions never overlap, so loading valid rows tile by tile writes
	// each cell once.
	p := grid.NewPartitioner(open)
	var total int64
	for _, d := range descs {
		tile, err := p.Materialize(ctx, d)
		if err != nil {
			return err
		}
		if tile == nil {
			continue
		}
		n, err := attrs.LoadCells(ctx, tile.ValidRows(), opts.Regions)
		if err != nil {
			return err
		}
		total += n
		zap.L().Debug("loaded tile cells", zap.String("tile", d.Key()), zap.Int64("rows", n))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d cells into %s\n", total, attrs.Table())
	return nil
}
