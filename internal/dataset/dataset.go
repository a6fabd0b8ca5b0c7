// Package dataset holds per-point solution fields read from the solver's
// volume output.
package dataset

import (
	"fmt"
	"sort"
)

// Dataset is a point cloud with named scalar fields, one value per point.
// Vector arrays are split into components named "name[i]". A Dataset is
// not modified after loading.
type Dataset struct {
	Path   string
	Points [][3]float64
	Fields map[string][]float64

	order []string
}

// New returns an empty dataset for path.
func New(path string) *Dataset {
	return &Dataset{Path: path, Fields: make(map[string][]float64)}
}

// Len is the number of points.
func (d *Dataset) Len() int { return len(d.Points) }

// AddField adds a field; values must have one entry per point.
func (d *Dataset) AddField(name string, values []float64) error {
	if len(values) != len(d.Points) {
		return fmt.Errorf("field %s has %d values for %d points", name, len(values), len(d.Points))
	}
	if _, dup := d.Fields[name]; dup {
		return fmt.Errorf("field %s defined twice", name)
	}
	d.Fields[name] = values
	d.order = append(d.order, name)
	return nil
}

// Field returns the values of a field.
func (d *Dataset) Field(name string) ([]float64, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

// FieldNames lists fields in file order. Datasets assembled by hand
// without AddField fall back to sorted order.
func (d *Dataset) FieldNames() []string {
	if len(d.order) == len(d.Fields) {
		return append([]string(nil), d.order...)
	}
	names := make([]string, 0, len(d.Fields))
	for n := range d.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
