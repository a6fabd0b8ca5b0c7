package sweep

import (
	"fmt"
	"sort"
)

// Presets reproduce the sweeps of the original flat plate study.
var presets = map[string]func() Specification{
	// inlet distance from -0.02 to -0.16 m at H = 0.03 m
	"vary-d": func() Specification {
		return SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.02, -0.04, -0.06, -0.08, -0.10, -0.12, -0.14, -0.16}}
	},
	// domain height at d = -0.16 m
	"vary-h": func() Specification {
		return CrossProduct{Primary: []float64{-0.16}, Secondary: []float64{0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.08, 0.10}}
	},
	"matrix": func() Specification {
		return CrossProduct{Primary: []float64{-0.08, -0.12, -0.16}, Secondary: []float64{0.02, 0.03, 0.04, 0.05}}
	},
}

// Preset returns a named sweep.
func Preset(name string) (Specification, error) {
	f, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown sweep preset %q (have %v)", name, PresetNames())
	}
	return f(), nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
