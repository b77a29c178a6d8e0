package grid

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTileMaterialization marks any failure while loading a tile's rows.
var ErrTileMaterialization = eris.New("grid: tile materialization failed")

// TileError carries the key of the tile that failed to materialize.
type TileError struct {
	Key string
	Err error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("grid: materialize tile %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TileError) Unwrap() error { return e.Err }

// Is matches ErrTileMaterialization.
func (e *TileError) Is(target error) bool { return target == ErrTileMaterialization }

// SplitOptions configures how a grid is cut into tiles.
type SplitOptions struct {
	TileSize   float64      // edge length of each tile, native units
	BufferSize float64      // extra margin loaded around each tile
	CellSize   float64      // grid cell edge length
	Workers    int          // parallel materialization workers; <= 1 runs inline
	Regions    RegionFilter // optional region allow-list
	Source     string       // handle passed to the Opener

	// Filter drops descriptors before dispatch, e.g. tiles already done.
	Filter func(Descriptor) bool
}

// Validate rejects unusable tile geometry.
func (o SplitOptions) Validate() error {
	if o.TileSize <= 0 {
		return eris.New("grid: tile size must be positive")
	}
	if o.CellSize <= 0 {
		return eris.New("grid: cell size must be positive")
	}
	if o.BufferSize < 0 {
		return eris.New("grid: buffer size must not be negative")
	}
	if o.CellSize >= o.TileSize {
		return eris.Errorf("grid: cell size %g must be smaller than tile size %g", o.CellSize, o.TileSize)
	}
	return nil
}

// Descriptors steps a cursor over bounds in tileSize increments, X then Y,
// and emits one descriptor per step. Valid regions are shrunk by half a cell
// so that cell centers, not edges, decide which tile owns a cell.
func Descriptors(bounds BBox, opts SplitOptions) ([]Descriptor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if bounds.IsEmpty() {
		return nil, nil
	}

	half := opts.CellSize / 2
	var out []Descriptor
	for x := bounds.MinX; x < bounds.MaxX; x += opts.TileSize {
		for y := bounds.MinY; y < bounds.MaxY; y += opts.TileSize {
			valid := BBox{
				MinX: x + half,
				MinY: y + half,
				MaxX: x + opts.TileSize - half,
				MaxY: y + opts.TileSize - half,
			}
			out = append(out, Descriptor{
				OriginX:     x,
				OriginY:     y,
				ValidRegion: valid,
				FullExtent:  valid.Expand(opts.BufferSize),
				Regions:     opts.Regions,
				Source:      opts.Source,
			})
		}
	}
	return out, nil
}

// Partitioner materializes tiles from a grid source.
type Partitioner struct {
	open Opener
}

// NewPartitioner returns a Partitioner that opens sources with open.
func NewPartitioner(open Opener) *Partitioner {
	return &Partitioner{open: open}
}

// Split computes descriptors over bounds, applies the optional filter and
// materializes the survivors. Tiles come back in descriptor order; empty
// tiles are dropped. Any materialization error aborts the whole split.
func (p *Partitioner) Split(ctx context.Context, bounds BBox, opts SplitOptions) ([]*Tile, error) {
	descs, err := Descriptors(bounds, opts)
	if err != nil {
		return nil, err
	}

	kept := opts.Pending(descs)
	if len(kept) != len(descs) {
		zap.L().Debug("filtered descriptors",
			zap.String("component", "grid.partition"),
			zap.Int("before", len(descs)),
			zap.Int("after", len(kept)),
		)
	}
	return p.MaterializeAll(ctx, kept, opts.Workers)
}

// Pending returns the descriptors Filter keeps, in order. Without a filter
// every descriptor is pending. descs is not modified.
func (o SplitOptions) Pending(descs []Descriptor) []Descriptor {
	if o.Filter == nil {
		return append([]Descriptor(nil), descs...)
	}
	var kept []Descriptor
	for _, d := range descs {
		if o.Filter(d) {
			kept = append(kept, d)
		}
	}
	return kept
}

// MaterializeAll loads every descriptor with up to workers in parallel.
func (p *Partitioner) MaterializeAll(ctx context.Context, descs []Descriptor, workers int) ([]*Tile, error) {
	log := zap.L().With(zap.String("component", "grid.partition"))
	results := make([]*Tile, len(descs))

	if workers <= 1 {
		for i, d := range descs {
			t, err := p.Materialize(ctx, d)
			if err != nil {
				return nil, err
			}
			results[i] = t
		}
	} else {
		var done atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, d := range descs {
			g.Go(func() error {
				t, err := p.Materialize(gctx, d)
				if err != nil {
					return err
				}
				results[i] = t
				if n := done.Add(1); n%100 == 0 {
					log.Debug("materialized tiles", zap.Int64("done", n), zap.Int("total", len(descs)))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	tiles := make([]*Tile, 0, len(results))
	for _, t := range results {
		if t != nil {
			tiles = append(tiles, t)
		}
	}
	log.Info("split complete", zap.Int("descriptors", len(descs)), zap.Int("tiles", len(tiles)))
	return tiles, nil
}

// Materialize loads one tile. It first probes the valid region for a row
// passing the region filter; a tile without one yields nil. Only rows
// intersecting FullExtent are ever loaded.
func (p *Partitioner) Materialize(ctx context.Context, d Descriptor) (*Tile, error) {
	src, err := p.open(ctx, d.Source)
	if err != nil {
		return nil, &TileError{Key: d.Key(), Err: err}
	}
	defer func() { _ = src.Close() }()

	probe, err := src.Rows(ctx, d.ValidRegion)
	if err != nil {
		return nil, &TileError{Key: d.Key(), Err: err}
	}
	found := false
	for _, r := range probe {
		if d.Regions.Match(r.Regions) {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}

	rows, err := src.Rows(ctx, d.FullExtent)
	if err != nil {
		return nil, &TileError{Key: d.Key(), Err: err}
	}
	for _, r := range rows {
		if err := EnsureCentroid(r); err != nil {
			return nil, &TileError{Key: d.Key(), Err: err}
		}
	}
	return NewTile(d, rows), nil
}
