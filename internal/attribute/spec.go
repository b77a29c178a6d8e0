// Package attribute computes named per-cell attributes over grid tiles.
// Attributes are rebuilt from their immutable Spec inside every worker, so
// no catchment or geometry state ever crosses a worker boundary.
package attribute

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sitescore/internal/catchment"
	"github.com/sells-group/sitescore/internal/db"
)

// Kind selects the attribute implementation.
type Kind string

// Supported kinds.
const (
	KindCatchmentSum        Kind = "catchment_sum"
	KindIndustrialFootprint Kind = "industrial_footprint"
	KindNearestDistance     Kind = "nearest_distance"
)

// CatchmentSpeed converts a travel time into a distance when no distance is
// configured: 120 km/h in meters per second.
const CatchmentSpeed = 120 * 1000.0 / 3600

// Spec is the immutable configuration of one attribute.
type Spec struct {
	Kind       Kind    `yaml:"kind" mapstructure:"kind" json:"kind"`
	Name       string  `yaml:"name" mapstructure:"name" json:"name,omitempty"`
	Title      string  `yaml:"title" mapstructure:"title" json:"title,omitempty"`
	Catchment  string  `yaml:"catchment" mapstructure:"catchment" json:"catchment,omitempty"`
	TravelTime float64 `yaml:"travel_time" mapstructure:"travel_time" json:"travel_time,omitempty"` // seconds
	Distance   float64 `yaml:"distance" mapstructure:"distance" json:"distance,omitempty"`          // meters
	Column     string  `yaml:"column" mapstructure:"column" json:"column,omitempty"`
	Op         string  `yaml:"op" mapstructure:"op" json:"op,omitempty"`
	Footprints string  `yaml:"footprints" mapstructure:"footprints" json:"footprints,omitempty"`
}

// CatchmentDistance returns the configured distance, or the distance covered
// in TravelTime at CatchmentSpeed.
func (s Spec) CatchmentDistance() float64 {
	if s.Distance > 0 {
		return s.Distance
	}
	return s.TravelTime * CatchmentSpeed
}

// CatchmentName returns the configured catchment name, or one derived from
// the travel time ("20min_drive").
func (s Spec) CatchmentName() string {
	if s.Catchment != "" {
		return s.Catchment
	}
	if s.TravelTime > 0 {
		return fmt.Sprintf("%dmin_drive", int(math.Round(s.TravelTime/60)))
	}
	return ""
}

// ColumnName returns the output column of the attribute.
func (s Spec) ColumnName() string {
	if s.Name != "" {
		return s.Name
	}
	switch s.Kind {
	case KindCatchmentSum:
		return strings.ToLower(s.Column) + "_" + s.CatchmentName()
	case KindIndustrialFootprint:
		return "industrial_footprint_" + s.CatchmentName()
	case KindNearestDistance:
		return "industrial_distance"
	}
	return ""
}

// aggregation returns the operator of a catchment_sum attribute; sum when
// unset.
func (s Spec) aggregation() (catchment.Op, error) {
	if s.Op == "" {
		return catchment.Sum, nil
	}
	return catchment.ParseOp(s.Op)
}

// Validate checks that the spec can be built.
func (s Spec) Validate() error {
	name := s.ColumnName()
	if !db.ValidIdentifier(name) {
		return eris.Errorf("attribute: invalid column name %q for %s attribute", name, s.Kind)
	}
	switch s.Kind {
	case KindCatchmentSum:
		if s.Column == "" {
			return eris.Errorf("attribute: %s: column is required", name)
		}
		if _, err := s.aggregation(); err != nil {
			return eris.Wrapf(err, "attribute: %s", name)
		}
	case KindIndustrialFootprint, KindNearestDistance:
		if s.Footprints == "" {
			return eris.Errorf("attribute: %s: footprints file is required", name)
		}
	default:
		return eris.Errorf("attribute: unknown kind %q", s.Kind)
	}
	if s.Kind != KindNearestDistance && s.CatchmentName() == "" {
		return eris.Errorf("attribute: %s: catchment name or travel time is required", name)
	}
	if s.Distance < 0 || s.TravelTime < 0 {
		return eris.Errorf("attribute: %s: distance and travel time must not be negative", name)
	}
	return nil
}

// LoadSpecs reads attribute specs from a YAML file with a top-level
// "attributes" list. Every spec is validated.
func LoadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "attribute: read specs %s", path)
	}

	var wrapper struct {
		Attributes []Spec `yaml:"attributes"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "attribute: parse specs %s", path)
	}
	for i, s := range wrapper.Attributes {
		if err := s.Validate(); err != nil {
			return nil, eris.Wrapf(err, "attribute: %s: attributes[%d]", path, i)
		}
	}
	return wrapper.Attributes, nil
}
