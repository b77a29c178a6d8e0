package catchment

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Op is an aggregation operator applied to the values matched by one
// catchment geometry.
type Op int

// Supported operators. Every operator ignores null values.
const (
	Sum Op = iota + 1
	Mean
	Count
	Min
	Max
	Median
	Std
	First
)

var opNames = map[Op]string{
	Sum:    "sum",
	Mean:   "mean",
	Count:  "count",
	Min:    "min",
	Max:    "max",
	Median: "median",
	Std:    "std",
	First:  "first",
}

// String returns the lower-case operator name used in column names and
// configuration.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "unknown"
}

// ParseOp parses an operator name, case-insensitively.
func ParseOp(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for op, n := range opNames {
		if n == name {
			return op, nil
		}
	}
	return 0, eris.Errorf("catchment: unknown aggregation op %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	if _, ok := opNames[o]; !ok {
		return nil, eris.Errorf("catchment: unknown aggregation op %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(b []byte) error {
	op, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Apply reduces vals. The boolean is false when the result is null: an
// empty input yields 0 for sum and count and null for everything else.
func (o Op) Apply(vals []float64) (float64, bool) {
	n := len(vals)
	switch o {
	case Sum:
		return sum(vals), true
	case Count:
		return float64(n), true
	}
	if n == 0 {
		return 0, false
	}

	switch o {
	case Mean:
		return sum(vals) / float64(n), true
	case Min:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m, true
	case Max:
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m, true
	case Median:
		s := append([]float64(nil), vals...)
		sort.Float64s(s)
		if n%2 == 1 {
			return s[n/2], true
		}
		return (s[n/2-1] + s[n/2]) / 2, true
	case Std:
		if n < 2 {
			return 0, false
		}
		mean := sum(vals) / float64(n)
		var ss float64
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		return math.Sqrt(ss / float64(n-1)), true
	case First:
		return vals[0], true
	}
	return 0, false
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}
