package attribute

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sitescore/internal/catchment"
	"github.com/sells-group/sitescore/internal/footprint"
	"github.com/sells-group/sitescore/internal/grid"
)

// Sink persists the attribute columns of a tile's valid cells.
type Sink interface {
	Upsert(ctx context.Context, tile *grid.Tile, columns []string) (int64, error)
}

// Checkpointer records finished tiles so an interrupted run can resume.
type Checkpointer interface {
	MarkDone(ctx context.Context, run, key string) error
}

// ColumnAdder creates output columns ahead of a run.
type ColumnAdder interface {
	AddColumn(ctx context.Context, name string) error
}

// Runner materializes tiles and applies every attribute to each of them in a
// worker pool. Workers receive descriptors only; attributes and catchments are
// built inside the worker from Specs.
type Runner struct {
	Specs   []Spec
	Deps    Deps
	Workers int

	Sink        Sink         // optional
	Checkpoints Checkpointer // optional
	RunID       string

	// OnBuild, when set, observes the attributes built for each tile.
	OnBuild func(key string, attrs []Attribute)
}

// Summary counts the work done by Run.
type Summary struct {
	Descriptors int
	Tiles       int
	Cells       int64
}

func (r *Runner) deps() Deps {
	d := r.Deps
	if d.Footprints == nil {
		d.Footprints = footprint.NewCache().Open
	}
	return d
}

// Columns validates the specs and returns every output column in spec order.
func (r *Runner) Columns() ([]string, error) {
	attrs, err := BuildAll(r.Specs, r.Deps)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, a := range attrs {
		cols = append(cols, a.Columns()...)
	}
	return cols, nil
}

// Prepare creates every output column through adder.
func (r *Runner) Prepare(ctx context.Context, adder ColumnAdder) error {
	cols, err := r.Columns()
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := adder.AddColumn(ctx, col); err != nil {
			return eris.Wrapf(err, "attribute: add column %s", col)
		}
	}
	return nil
}

// Run processes every descriptor. The first failing tile aborts the run.
func (r *Runner) Run(ctx context.Context, p *grid.Partitioner, descs []grid.Descriptor) (Summary, error) {
	sum := Summary{Descriptors: len(descs)}
	cols, err := r.Columns()
	if err != nil {
		return sum, err
	}
	deps := r.deps()

	log := zap.L().With(
		zap.String("component", "attribute.runner"),
		zap.String("run", r.RunID),
		zap.Int("workers", r.Workers),
	)
	log.Info("run started", zap.Int("descriptors", len(descs)), zap.Strings("columns", cols))

	var tiles, cells atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Workers, 1))
	for _, d := range descs {
		g.Go(func() error {
			n, ok, err := r.runTile(gctx, p, d, deps, cols)
			if err != nil {
				return err
			}
			if ok {
				tiles.Add(1)
				cells.Add(n)
			}
			if r.Checkpoints != nil {
				if err := r.Checkpoints.MarkDone(gctx, r.RunID, d.Key()); err != nil {
					return eris.Wrapf(err, "attribute: checkpoint tile %s", d.Key())
				}
			}
			return nil
		})
	}
	err = g.Wait()
	sum.Tiles = int(tiles.Load())
	sum.Cells = cells.Load()
	if err != nil {
		return sum, err
	}

	log.Info("run complete", zap.Int("tiles", sum.Tiles), zap.Int64("cells", sum.Cells))
	return sum, nil
}

// runTile materializes and processes one descriptor. ok is false when the
// descriptor held no valid cells.
func (r *Runner) runTile(ctx context.Context, p *grid.Partitioner, d grid.Descriptor, deps Deps, cols []string) (int64, bool, error) {
	tile, err := p.Materialize(ctx, d)
	if err != nil {
		return 0, false, err
	}
	if tile == nil {
		return 0, false, nil
	}

	attrs, err := BuildAll(r.Specs, deps)
	if err != nil {
		return 0, false, err
	}
	if r.OnBuild != nil {
		r.OnBuild(d.Key(), attrs)
	}
	if err := ProcessTile(ctx, tile, attrs); err != nil {
		return 0, false, err
	}

	if r.Sink == nil {
		return int64(len(tile.ValidRows())), true, nil
	}
	n, err := r.Sink.Upsert(ctx, tile, cols)
	if err != nil {
		return 0, false, eris.Wrapf(err, "attribute: store tile %s", d.Key())
	}
	return n, true, nil
}

// ProcessTile applies attrs to tile in order, sharing one catchment
// registry, then aggregates every registered catchment once.
func ProcessTile(ctx context.Context, tile *grid.Tile, attrs []Attribute) error {
	reg := catchment.NewRegistry()
	for _, a := range attrs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.ApplyTo(ctx, tile, reg); err != nil {
			return eris.Wrapf(err, "attribute: apply %s to tile %s", a.Name(), tile.Key())
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	zap.L().Debug("attribute: computing catchments",
		zap.String("tile", tile.Key()),
		zap.Strings("catchments", reg.Names()),
	)
	if err := reg.Compute(tile); err != nil {
		return eris.Wrapf(err, "attribute: aggregate tile %s", tile.Key())
	}
	return nil
}
