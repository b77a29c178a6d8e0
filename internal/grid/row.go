package grid

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// RegionLevels is the depth of the NUTS-style region hierarchy.
const RegionLevels = 4

// Row is one grid cell (or any other source feature) as loaded from a source.
// Values holds named numeric columns; a missing key is a null.
type Row struct {
	ID       string
	Country  string
	Regions  [RegionLevels]string
	Geometry geom.T
	Centroid geom.Coord
	Values   map[string]float64
}

// Value returns the column value and whether it is set.
func (r *Row) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// Set stores a column value.
func (r *Row) Set(col string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[col] = v
}

// Drop removes columns, leaving them null.
func (r *Row) Drop(cols ...string) {
	for _, c := range cols {
		delete(r.Values, c)
	}
}

// Columns returns the set column names in sorted order.
func (r *Row) Columns() []string {
	cols := make([]string, 0, len(r.Values))
	for c := range r.Values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// NormalizeCode strips the suffix some grid releases append to region codes
// ("DE1-2011" becomes "DE1").
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.Index(code, "-"); i >= 0 {
		return code[:i]
	}
	return code
}

// RegionFilter is an allow-list of region codes of any level. An empty
// filter admits every row.
type RegionFilter []string

// Match reports whether any of the row's region levels is in the allow-list.
func (f RegionFilter) Match(regions [RegionLevels]string) bool {
	if len(f) == 0 {
		return true
	}
	for _, allowed := range f {
		for _, code := range regions {
			if code != "" && code == allowed {
				return true
			}
		}
	}
	return false
}

// ValidateRegions checks that each non-empty level extends the level above
// it. Loading does not call this; malformed hierarchies are a data quality
// issue of the source grid.
func ValidateRegions(regions [RegionLevels]string) error {
	for i := 1; i < RegionLevels; i++ {
		parent, child := regions[i-1], regions[i]
		if parent == "" || child == "" {
			continue
		}
		if !strings.HasPrefix(child, parent) {
			return eris.Errorf("grid: region level %d %q does not extend level %d %q", i, child, i-1, parent)
		}
	}
	return nil
}
