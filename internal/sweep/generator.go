package sweep

import (
	"fmt"
	"math"

	"github.com/banshee-data/paramstudy/internal/spacing"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// Default parameter names of the flat plate study.
const (
	DefaultPrimaryName   = "d_inlet"
	DefaultSecondaryName = "H_dom"
)

// Specification is a caller's declaration of which combinations to run.
// It is one of SingleAxis, CrossProduct or Explicit.
type Specification interface {
	tuples() ([]tuple, error)
}

// SingleAxis varies the primary value with the secondary held fixed.
type SingleAxis struct {
	FixedSecondary float64
	Primary        []float64
}

// CrossProduct runs every primary value against every secondary value.
// Secondary varies fastest.
type CrossProduct struct {
	Primary   []float64
	Secondary []float64
}

// ExplicitCase is a caller-named parameter pair.
type ExplicitCase struct {
	A  float64 `json:"a" yaml:"a"`
	B  float64 `json:"b" yaml:"b"`
	ID string  `json:"id" yaml:"id"`
}

// Explicit lists cases one by one, ids included.
type Explicit struct {
	Cases []ExplicitCase
}

type tuple struct {
	a, b float64
	id   string
}

func (s SingleAxis) tuples() ([]tuple, error) {
	out := make([]tuple, 0, len(s.Primary))
	for _, a := range s.Primary {
		out = append(out, tuple{a: a, b: s.FixedSecondary})
	}
	return out, nil
}

func (s CrossProduct) tuples() ([]tuple, error) {
	combos, err := Cartesian(s.Primary, s.Secondary)
	if err != nil {
		return nil, studyerr.Parameterf("sweep", "%v", err)
	}
	out := make([]tuple, 0, len(combos))
	for _, c := range combos {
		out = append(out, tuple{a: c[0], b: c[1]})
	}
	return out, nil
}

func (s Explicit) tuples() ([]tuple, error) {
	out := make([]tuple, 0, len(s.Cases))
	for _, c := range s.Cases {
		if c.ID == "" {
			return nil, studyerr.Parameterf("case_id", "explicit case (a=%g, b=%g) has no id", c.A, c.B)
		}
		out = append(out, tuple{a: c.A, b: c.B, id: c.ID})
	}
	return out, nil
}

// Generator turns a Specification into CaseDescriptors.
type Generator struct {
	PrimaryName   string
	SecondaryName string

	// Discretize runs the primary distance through the geometric solver
	// and records the corrected value.
	Discretize bool
	Ratio      float64
	BaseCell   float64

	IDs IDScheme

	// Overrides produces the solver config directives for a case id.
	// Nil means DefaultOverrides.
	Overrides func(id string) map[string]string
}

// NewGenerator returns a generator configured for the flat plate study.
func NewGenerator() *Generator {
	return &Generator{
		PrimaryName:   DefaultPrimaryName,
		SecondaryName: DefaultSecondaryName,
		Discretize:    true,
		Ratio:         spacing.DefaultRatio,
		BaseCell:      spacing.DefaultBaseCell,
		IDs:           DefaultIDScheme(),
	}
}

// DefaultOverrides points the solver at the case's mesh file.
func DefaultOverrides(id string) map[string]string {
	return map[string]string{"MESH_FILENAME": MeshFilename(id)}
}

// MeshFilename is the mesh file name for a case.
func MeshFilename(id string) string {
	return "mesh_" + id + ".su2"
}

// Generate expands spec into ordered CaseDescriptors. It fails with a
// ParameterError, and returns no cases, if any value is invalid, any solve
// fails, or two distinct tuples would share an id.
func (g *Generator) Generate(spec Specification) ([]CaseDescriptor, error) {
	if spec == nil {
		return nil, studyerr.Parameterf("sweep", "no specification given")
	}
	tuples, err := spec.tuples()
	if err != nil {
		return nil, err
	}
	if len(tuples) == 0 {
		return nil, studyerr.Parameterf("sweep", "specification yields no cases")
	}

	overrides := g.Overrides
	if overrides == nil {
		overrides = DefaultOverrides
	}

	seen := make(map[string]tuple, len(tuples))
	cases := make([]CaseDescriptor, 0, len(tuples))
	for _, t := range tuples {
		if !finite(t.a) || !finite(t.b) {
			return nil, studyerr.Parameterf("sweep", "non-finite value in (%g, %g)", t.a, t.b)
		}

		id := t.id
		if id == "" {
			id, err = g.IDs.Format(t.a, t.b)
			if err != nil {
				return nil, err
			}
		}
		if err := ValidateID(id); err != nil {
			return nil, err
		}
		if prev, dup := seen[id]; dup {
			return nil, &studyerr.ParameterError{
				Field: "case_id",
				Reason: fmt.Sprintf("%q is produced by both (%s=%g, %s=%g) and (%s=%g, %s=%g); use distinct ids or a larger id scale",
					id, g.PrimaryName, prev.a, g.SecondaryName, prev.b, g.PrimaryName, t.a, g.SecondaryName, t.b),
			}
		}
		seen[id] = t

		params := []Param{{Name: g.PrimaryName, Value: t.a}, {Name: g.SecondaryName, Value: t.b}}
		corrected := append([]Param(nil), params...)

		var sp *spacing.Result
		if g.Discretize {
			r, err := spacing.SolveSigned(t.a, g.Ratio, g.BaseCell)
			if err != nil {
				return nil, fmt.Errorf("case %s: %w", id, err)
			}
			corrected[0].Value = r.Corrected
			sp = &r
		}

		cases = append(cases, NewCaseDescriptor(id, params, corrected, sp, overrides(id)))
	}
	return cases, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
