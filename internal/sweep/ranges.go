package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxValues caps any single generated list and maxCombos the size of a
// cartesian expansion. A typo in a range spec should fail, not allocate.
const (
	maxValues = 10000
	maxCombos = 10000
)

// RangeSpec defines a floating-point parameter range for sweeping.
// Step carries the direction: a negative step walks from Start down to Stop.
type RangeSpec struct {
	Start float64
	Stop  float64
	Step  float64
}

// ParseRangeSpec parses a "start:stop:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected start:stop:step", s)
	}

	var vals [3]float64
	for i, name := range []string{"start", "stop", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: must be finite", name, parts[i])
		}
		vals[i] = v
	}

	spec := RangeSpec{Start: vals[0], Stop: vals[1], Step: vals[2]}
	if spec.Step == 0 {
		return RangeSpec{}, fmt.Errorf("step must be non-zero")
	}
	if (spec.Stop-spec.Start)*spec.Step < 0 {
		return RangeSpec{}, fmt.Errorf("step %g never reaches %g from %g", spec.Step, spec.Stop, spec.Start)
	}
	return spec, nil
}

// Values expands the range, inclusive of Stop when it falls on the grid.
// Each value is computed from its index and rounded to nine decimals so
// accumulated float error never leaks into case ids.
func (r RangeSpec) Values() ([]float64, error) {
	if r.Step == 0 {
		return nil, fmt.Errorf("step must be non-zero")
	}
	span := (r.Stop - r.Start) / r.Step
	if span < 0 {
		return nil, nil
	}
	// Tolerate float noise on the last grid point.
	count := int(math.Floor(span+1e-9)) + 1
	if count > maxValues {
		return nil, fmt.Errorf("range %g:%g:%g yields %d values, limit is %d", r.Start, r.Stop, r.Step, count, maxValues)
	}

	out := make([]float64, count)
	for i := range out {
		out[i] = roundTo(r.Start+float64(i)*r.Step, 9)
	}
	return out, nil
}

// ParseParamList parses a comma-separated list of floats or a
// "start:stop:step" range specification.
func ParseParamList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values()
	}

	return ParseCSVFloat64s(s)
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Cartesian returns the product of the given value lists. The last list
// varies fastest, so Cartesian(a, b) walks b for each element of a.
func Cartesian(values ...[]float64) ([][]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	total := int64(1)
	for _, v := range values {
		if len(v) == 0 {
			return nil, nil
		}
		total *= int64(len(v))
		if total > maxCombos {
			return nil, fmt.Errorf("parameter combinations would exceed safe limit of %d", maxCombos)
		}
	}

	result := make([][]float64, total)
	for i := range result {
		result[i] = make([]float64, len(values))
	}

	repeat := int64(1)
	for dim := len(values) - 1; dim >= 0; dim-- {
		dimValues := values[dim]
		cycle := int64(len(dimValues))
		for i := int64(0); i < total; i++ {
			result[i][dim] = dimValues[(i/repeat)%cycle]
		}
		repeat *= cycle
	}

	return result, nil
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
