// Package catchment joins per-cell reachable-area geometries against source
// rows and aggregates the matches back onto the grid.
package catchment

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/sitescore/internal/grid"
)

// Aggregation pairs a source column with the operator applied to it. Target
// overrides the derived output column name.
type Aggregation struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Target string `json:"target,omitempty"`
}

// Catchment is a named mapping from cell ID to the area reachable from that
// cell, plus the aggregations to compute when it is applied.
type Catchment struct {
	Name         string
	Geometries   map[string]geom.T
	Aggregations []Aggregation
}

// New returns a catchment owning geoms.
func New(name string, geoms map[string]geom.T, aggs ...Aggregation) *Catchment {
	if geoms == nil {
		geoms = make(map[string]geom.T)
	}
	return &Catchment{Name: name, Geometries: geoms, Aggregations: aggs}
}

// Len returns the number of cells with a geometry.
func (c *Catchment) Len() int { return len(c.Geometries) }

// Append unions o into c. Cell geometries from o win on collision;
// aggregations already present are not repeated.
func (c *Catchment) Append(o *Catchment) {
	if c.Geometries == nil {
		c.Geometries = make(map[string]geom.T, len(o.Geometries))
	}
	for id, g := range o.Geometries {
		c.Geometries[id] = g
	}
	c.AddAggregations(o.Aggregations...)
}

// AddAggregations appends aggregations not already present.
func (c *Catchment) AddAggregations(aggs ...Aggregation) {
	for _, a := range aggs {
		dup := false
		for _, have := range c.Aggregations {
			if have == a {
				dup = true
				break
			}
		}
		if !dup {
			c.Aggregations = append(c.Aggregations, a)
		}
	}
}

// Columns returns the distinct source columns the aggregations read, in
// first-use order.
func (c *Catchment) Columns() []string {
	return columnsOf(c.Aggregations)
}

// TargetName derives the output column for a. Without an explicit target it
// is <column>_<catchment>, or <column>_<op>_<catchment> when the column is
// aggregated with more than one operator.
func (c *Catchment) TargetName(a Aggregation) string {
	return targetName(c.Name, c.Aggregations, a)
}

// Targets returns the output columns of every aggregation, in order.
func (c *Catchment) Targets() []string {
	out := make([]string, len(c.Aggregations))
	for i, a := range c.Aggregations {
		out[i] = c.TargetName(a)
	}
	return out
}

// Bounds returns the envelope of every catchment geometry.
func (c *Catchment) Bounds() grid.BBox {
	b := grid.EmptyBBox()
	for _, g := range c.Geometries {
		b = b.Extend(grid.BoundsOf(g))
	}
	return b
}

func targetName(name string, aggs []Aggregation, a Aggregation) string {
	if a.Target != "" {
		return a.Target
	}
	ops := make(map[Op]bool)
	for _, other := range aggs {
		if other.Column == a.Column && other.Target == "" {
			ops[other.Op] = true
		}
	}
	if len(ops) > 1 {
		return fmt.Sprintf("%s_%s_%s", a.Column, a.Op, name)
	}
	return fmt.Sprintf("%s_%s", a.Column, name)
}

func columnsOf(aggs []Aggregation) []string {
	seen := make(map[string]bool, len(aggs))
	var cols []string
	for _, a := range aggs {
		if !seen[a.Column] {
			seen[a.Column] = true
			cols = append(cols, a.Column)
		}
	}
	return cols
}
