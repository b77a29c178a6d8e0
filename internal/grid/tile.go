package grid

import (
	"fmt"
	"math"
)

// Descriptor is the value-only description of a tile. It carries no loaded
// data so it can be handed to any worker.
type Descriptor struct {
	OriginX     float64      `json:"origin_x"`
	OriginY     float64      `json:"origin_y"`
	ValidRegion BBox         `json:"valid_region"`
	FullExtent  BBox         `json:"full_extent"`
	Regions     RegionFilter `json:"valid_nuts,omitempty"`
	Source      string       `json:"grid_path"`
}

// Key identifies the tile by its cursor origin.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%d_%d", int64(math.Round(d.OriginX)), int64(math.Round(d.OriginY)))
}

// Tile is a materialized descriptor: every source row intersecting
// FullExtent, with the rows to keep flagged valid.
type Tile struct {
	Descriptor

	Rows  []*Row
	Valid []bool

	// Truncated marks valid cells whose catchment reached past FullExtent.
	Truncated map[string]bool

	// Unbounded tiles cover a whole grid; there is no buffer to overrun.
	Unbounded bool

	byID map[string]int
}

// NewTile flags rows intersecting the valid region whose region codes pass
// the descriptor's filter.
func NewTile(d Descriptor, rows []*Row) *Tile {
	t := &Tile{
		Descriptor: d,
		Rows:       rows,
		Valid:      make([]bool, len(rows)),
		Truncated:  make(map[string]bool),
		byID:       make(map[string]int, len(rows)),
	}
	for i, r := range rows {
		t.byID[r.ID] = i
		t.Valid[i] = d.ValidRegion.Intersects(BoundsOf(r.Geometry)) && d.Regions.Match(r.Regions)
	}
	return t
}

// WholeTile wraps an entire grid as a single unbounded tile.
func WholeTile(rows []*Row, regions RegionFilter) *Tile {
	b := EmptyBBox()
	for _, r := range rows {
		b = b.Extend(BoundsOf(r.Geometry))
	}
	t := NewTile(Descriptor{ValidRegion: b, FullExtent: b, Regions: regions}, rows)
	t.Unbounded = true
	return t
}

// Row returns the row with the given ID.
func (t *Tile) Row(id string) (*Row, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.Rows[i], true
}

// IsValid reports whether the row with the given ID is kept for output.
func (t *Tile) IsValid(id string) bool {
	i, ok := t.byID[id]
	return ok && t.Valid[i]
}

// ValidRows returns the rows kept for output, in load order.
func (t *Tile) ValidRows() []*Row {
	out := make([]*Row, 0, len(t.Rows))
	for i, r := range t.Rows {
		if t.Valid[i] {
			out = append(out, r)
		}
	}
	return out
}

// DropColumns nulls the given columns on every row.
func (t *Tile) DropColumns(cols ...string) {
	for _, r := range t.Rows {
		r.Drop(cols...)
	}
}
