// Package sweep turns a sweep specification into the ordered list of study
// cases. Generation is pure: the same specification always yields the same
// cases, and every failure is reported before any external tool runs.
package sweep

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/paramstudy/internal/spacing"
)

// Param is one named sweep value.
type Param struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CaseDescriptor is one parameter combination of a study. It is immutable:
// accessors hand out copies.
type CaseDescriptor struct {
	id        string
	params    []Param
	corrected []Param
	spacing   *spacing.Result
	overrides map[string]string
}

// NewCaseDescriptor assembles a descriptor, copying its inputs. It is used
// when reloading cases from the run store; Generate is the normal source.
func NewCaseDescriptor(id string, params, corrected []Param, sp *spacing.Result, overrides map[string]string) CaseDescriptor {
	c := CaseDescriptor{
		id:        id,
		params:    append([]Param(nil), params...),
		corrected: append([]Param(nil), corrected...),
		overrides: copyOverrides(overrides),
	}
	if sp != nil {
		s := *sp
		c.spacing = &s
	}
	return c
}

// ID returns the case id.
func (c CaseDescriptor) ID() string { return c.id }

// Parameters returns the requested sweep values in sweep order.
func (c CaseDescriptor) Parameters() []Param { return append([]Param(nil), c.params...) }

// CorrectedParameters returns the values after geometric correction.
func (c CaseDescriptor) CorrectedParameters() []Param { return append([]Param(nil), c.corrected...) }

// ConfigOverrides returns the solver config directives to inject.
func (c CaseDescriptor) ConfigOverrides() map[string]string { return copyOverrides(c.overrides) }

// Spacing returns the geometric solve for the primary distance, if any.
func (c CaseDescriptor) Spacing() (spacing.Result, bool) {
	if c.spacing == nil {
		return spacing.Result{}, false
	}
	return *c.spacing, true
}

// Param returns the requested value of the named parameter.
func (c CaseDescriptor) Param(name string) (float64, bool) {
	return lookup(c.params, name)
}

// CorrectedParam returns the corrected value of the named parameter.
func (c CaseDescriptor) CorrectedParam(name string) (float64, bool) {
	return lookup(c.corrected, name)
}

func (c CaseDescriptor) String() string {
	return fmt.Sprintf("%s %v", c.id, c.params)
}

type caseJSON struct {
	ID        string            `json:"id"`
	Params    []Param           `json:"parameters"`
	Corrected []Param           `json:"corrected_parameters"`
	Spacing   *spacing.Result   `json:"spacing,omitempty"`
	Overrides map[string]string `json:"config_overrides,omitempty"`
}

// MarshalJSON encodes the descriptor for the run store.
func (c CaseDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(caseJSON{ID: c.id, Params: c.params, Corrected: c.corrected, Spacing: c.spacing, Overrides: c.overrides})
}

// UnmarshalJSON decodes a descriptor written by MarshalJSON.
func (c *CaseDescriptor) UnmarshalJSON(data []byte) error {
	var raw caseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NewCaseDescriptor(raw.ID, raw.Params, raw.Corrected, raw.Spacing, raw.Overrides)
	return nil
}

func lookup(params []Param, name string) (float64, bool) {
	for _, p := range params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

func copyOverrides(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
