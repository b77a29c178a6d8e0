package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/attribute"
	"github.com/sells-group/sitescore/internal/crs"
	"github.com/sells-group/sitescore/internal/footprint"
	"github.com/sells-group/sitescore/internal/grid"
	"github.com/sells-group/sitescore/internal/store"
)

var gridRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute attributes for every tile",
	Long:  "Splits the grid, computes every configured attribute per tile in a worker pool, upserts the values into the attributes table and checkpoints finished tiles. Pass --resume to continue an interrupted run.",
	RunE:  runGridRun,
}

func init() {
	gridRunCmd.Flags().String("resume", "", "run ID to resume; finished tiles are skipped")
	gridRunCmd.Flags().String("label", "", "label stored with a new run")
	gridCmd.AddCommand(gridRunCmd)
}

func runGridRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("run"); err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetString("resume")
	label, _ := cmd.Flags().GetString("label")
	start := time.Now()

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
	attrs.WithRetry(cfg.Store.Retry.RetryConfig())
	if err := attrs.EnsureTable(ctx); err != nil {
		return err
	}

	checkpoints, err := store.NewCheckpoints(ctx, cfg.Store.CheckpointPath)
	if err != nil {
		return err
	}
	defer checkpoints.Close() //nolint:errcheck

	runID := resume
	if runID == "" {
		if runID, err = checkpoints.NewRun(ctx, label); err != nil {
			return err
		}
	}
	keep, err := checkpoints.Filter(ctx, runID)
	if err != nil {
		return err
	}

	runner := &attribute.Runner{
		Specs: cfg.Attributes,
		Deps: attribute.Deps{
			CRS:        crs.CRS(cfg.Grid.CRS),
			Footprints: footprint.NewCache().Open,
		},
		Workers:     cfg.Grid.Workers,
		Sink:        attrs,
		Checkpoints: checkpoints,
		RunID:       runID,
	}
	if err := runner.Prepare(ctx, attrs); err != nil {
		return err
	}

	bounds, err := gridBounds(ctx, open, cfg.Grid.Path)
	if err != nil {
		return err
	}
	opts := cfg.Grid.SplitOptions()
	opts.Filter = keep
	descs, err := grid.Descriptors(bounds, opts)
	if err != nil {
		return err
	}
	pending := opts.Pending(descs)
	zap.L().Info("grid run planned",
		zap.String("run", runID),
		zap.Int("descriptors", len(descs)),
		zap.Int("pending", len(pending)),
	)

	summary, err := runner.Run(ctx, grid.NewPartitioner(open), pending)
	if err != nil {
		return eris.Wrapf(err, "grid: run %s (resume with --resume %s)", runID, runID)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d descriptors pending, %d tiles, %d cells written in %s\n",
		runID, len(pending), len(descs), summary.Tiles, summary.Cells, time.Since(start).Round(time.Second))
	return nil
}

var gridRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List grid runs and their progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		checkpoints, err := store.NewCheckpoints(cmd.Context(), cfg.Store.CheckpointPath)
		if err != nil {
			return err
		}
		defer checkpoints.Close() //nolint:errcheck

		runs, err := checkpoints.Runs(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, r := range runs {
			fmt.Fprintf(w, "%s  %-20s  %6d tiles  %s\n", r.ID, r.Label, r.Tiles, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() { gridCmd.AddCommand(gridRunsCmd) }
