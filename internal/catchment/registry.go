package catchment

import (
	"github.com/sells-group/sitescore/internal/grid"
)

// Registry holds the catchments applied to one tile. Catchments sharing a
// name are one logical catchment: the registry keeps a single geometry set
// per name and grows it as further catchments are applied.
type Registry struct {
	byName map[string]*Catchment
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Catchment)}
}

// Apply registers c, or unions it into the catchment already registered
// under the same name. The returned catchment is the one the registry holds;
// callers must use it in place of c from then on.
func (r *Registry) Apply(c *Catchment) *Catchment {
	if have, ok := r.byName[c.Name]; ok {
		if have != c {
			have.Append(c)
		}
		return have
	}
	r.byName[c.Name] = c
	r.order = append(r.order, c.Name)
	return c
}

// Get returns the registered catchment with the given name.
func (r *Registry) Get(name string) (*Catchment, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns catchment names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Compute aggregates every registered catchment that carries aggregations
// onto the tile, in registration order.
func (r *Registry) Compute(tile *grid.Tile) error {
	for _, name := range r.order {
		c := r.byName[name]
		if len(c.Aggregations) == 0 {
			continue
		}
		if err := Aggregate(tile, c); err != nil {
			return err
		}
	}
	return nil
}
