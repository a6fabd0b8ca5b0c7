package sweep

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/spacing"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

func TestGenerate_SingleAxisDistinctIDs(t *testing.T) {
	t.Parallel()

	primary, err := ParseParamList("-0.02:-0.40:-0.02")
	require.NoError(t, err)
	require.Len(t, primary, 20)

	cases, err := NewGenerator().Generate(SingleAxis{FixedSecondary: 0.03, Primary: primary})
	require.NoError(t, err)
	require.Len(t, cases, len(primary))

	ids := make(map[string]bool)
	for i, c := range cases {
		ids[c.ID()] = true
		a, ok := c.Param(DefaultPrimaryName)
		require.True(t, ok)
		assert.Equal(t, primary[i], a, "submission order preserved")
	}
	assert.Len(t, ids, len(primary))
	assert.Equal(t, "d002_H03", cases[0].ID())
	assert.Equal(t, "d040_H03", cases[19].ID())
}

func TestGenerate_CorrectedDistance(t *testing.T) {
	t.Parallel()

	cases, err := NewGenerator().Generate(SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.04}})
	require.NoError(t, err)
	c := cases[0]

	sp, ok := c.Spacing()
	require.True(t, ok)
	want, err := spacing.SolveSigned(-0.04, spacing.DefaultRatio, spacing.DefaultBaseCell)
	require.NoError(t, err)
	assert.Equal(t, want, sp)

	raw, _ := c.Param(DefaultPrimaryName)
	corr, _ := c.CorrectedParam(DefaultPrimaryName)
	assert.Equal(t, -0.04, raw)
	assert.Equal(t, want.Corrected, corr)
	h, _ := c.CorrectedParam(DefaultSecondaryName)
	assert.Equal(t, 0.03, h, "secondary is not discretised")

	assert.Equal(t, map[string]string{"MESH_FILENAME": "mesh_d004_H03.su2"}, c.ConfigOverrides())
}

func TestGenerate_NoDiscretization(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	g.Discretize = false
	cases, err := g.Generate(SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.04}})
	require.NoError(t, err)

	_, ok := cases[0].Spacing()
	assert.False(t, ok)
	assert.Equal(t, cases[0].Parameters(), cases[0].CorrectedParameters())
}

func TestGenerate_CrossProductOrder(t *testing.T) {
	t.Parallel()

	cases, err := NewGenerator().Generate(CrossProduct{Primary: []float64{-0.08, -0.12}, Secondary: []float64{0.02, 0.03}})
	require.NoError(t, err)

	var ids []string
	for _, c := range cases {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"d008_H02", "d008_H03", "d012_H02", "d012_H03"}, ids)
}

func TestGenerate_Explicit(t *testing.T) {
	t.Parallel()

	cases, err := NewGenerator().Generate(Explicit{Cases: []ExplicitCase{
		{A: -0.16, B: 0.03, ID: "baseline"},
		{A: -0.08, B: 0.03, ID: "short-inlet"},
	}})
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "baseline", cases[0].ID())
	assert.Equal(t, "mesh_short-inlet.su2", cases[1].ConfigOverrides()["MESH_FILENAME"])
}

func TestGenerate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec Specification
	}{
		{"nil spec", nil},
		{"empty single axis", SingleAxis{FixedSecondary: 0.03}},
		{"empty cross product", CrossProduct{Primary: []float64{-0.1}}},
		{"duplicate primary", SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.04, -0.04}}},
		{"rounding collision", SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.041, -0.044}}},
		{"sign collision", SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.04, 0.04}}},
		{"explicit duplicate id", Explicit{Cases: []ExplicitCase{{A: -0.1, B: 0.03, ID: "x"}, {A: -0.2, B: 0.03, ID: "x"}}}},
		{"explicit missing id", Explicit{Cases: []ExplicitCase{{A: -0.1, B: 0.03}}}},
		{"explicit unsafe id", Explicit{Cases: []ExplicitCase{{A: -0.1, B: 0.03, ID: "../etc"}}}},
		{"zero distance", SingleAxis{FixedSecondary: 0.03, Primary: []float64{0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, err := NewGenerator().Generate(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, studyerr.ErrParameter), "got %v", err)
			assert.Nil(t, cases, "no partial batch")
		})
	}
}

func TestGenerate_Restartable(t *testing.T) {
	t.Parallel()

	spec, err := Preset("matrix")
	require.NoError(t, err)
	g := NewGenerator()

	first, err := g.Generate(spec)
	require.NoError(t, err)
	second, err := g.Generate(spec)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second, cmp.AllowUnexported(CaseDescriptor{})); diff != "" {
		t.Errorf("Generate not deterministic (-first +second):\n%s", diff)
	}
	assert.Len(t, first, 12)
}

func TestCaseDescriptor_Immutable(t *testing.T) {
	t.Parallel()

	cases, err := NewGenerator().Generate(SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.02}})
	require.NoError(t, err)
	c := cases[0]

	p := c.Parameters()
	p[0].Value = 99
	o := c.ConfigOverrides()
	o["MESH_FILENAME"] = "other.su2"

	v, _ := c.Param(DefaultPrimaryName)
	assert.Equal(t, -0.02, v)
	assert.Equal(t, "mesh_d002_H03.su2", c.ConfigOverrides()["MESH_FILENAME"])
}

func TestCaseDescriptor_JSON(t *testing.T) {
	t.Parallel()

	cases, err := NewGenerator().Generate(SingleAxis{FixedSecondary: 0.03, Primary: []float64{-0.06}})
	require.NoError(t, err)

	data, err := json.Marshal(cases[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"d006_H03"`)

	var back CaseDescriptor
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(cases[0], back, cmp.AllowUnexported(CaseDescriptor{})); diff != "" {
		t.Errorf("descriptor changed through JSON (-want +got):\n%s", diff)
	}
}

func TestPreset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"matrix", "vary-d", "vary-h"}, PresetNames())
	for _, name := range PresetNames() {
		spec, err := Preset(name)
		require.NoError(t, err)
		_, err = NewGenerator().Generate(spec)
		assert.NoError(t, err, name)
	}
	_, err := Preset("nope")
	assert.Error(t, err)
}
