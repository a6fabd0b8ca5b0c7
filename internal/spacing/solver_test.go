package spacing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/studyerr"
)

func TestSolve_InvalidInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		target, ratio, base float64
	}{
		{"zero target", 0, 1.12, 0.001},
		{"negative target", -0.1, 1.12, 0.001},
		{"ratio one", 0.1, 1, 0.001},
		{"ratio below one", 0.1, 0.9, 0.001},
		{"zero base", 0.1, 1.12, 0},
		{"nan target", math.NaN(), 1.12, 0.001},
		{"inf ratio", 0.1, math.Inf(1), 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.target, tt.ratio, tt.base)
			require.Error(t, err)
			assert.True(t, errors.Is(err, studyerr.ErrParameter), "got %v", err)
		})
	}
}

func TestSolve_SmallestCountReachingTarget(t *testing.T) {
	t.Parallel()

	ratios := []float64{1.01, 1.05, 1.12, 1.2, 1.5, 2, 3}
	bases := []float64{1e-5, DefaultBaseCell, 0.01, 0.5}
	targets := []float64{1e-4, 0.02, 0.04, 0.16, 0.4, 1, 3.7}

	for _, ratio := range ratios {
		for _, base := range bases {
			for _, target := range targets {
				r, err := Solve(target, ratio, base)
				require.NoError(t, err)

				assert.GreaterOrEqual(t, r.Cells, 1)
				assert.GreaterOrEqual(t, r.Corrected, target, "ratio=%g base=%g target=%g", ratio, base, target)
				if r.Cells > 1 {
					assert.Less(t, Sum(r.Cells-1, ratio, base), target, "n-1 cells already reach the target")
				}
				assert.Less(t, math.Abs(r.Corrected-target), r.LargestCell)
				assert.InDelta(t, r.Corrected-target, r.Difference, 1e-15)
			}
		}
	}
}

func TestSolve_ExactHit(t *testing.T) {
	t.Parallel()

	// 1 + 2 + 4 = 7
	r, err := Solve(7, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Cells)
	assert.Equal(t, 7.0, r.Corrected)
	assert.Equal(t, 0.0, r.Difference)
	assert.Equal(t, 4.0, r.LargestCell)
}

func TestSolve_TargetBelowFirstCell(t *testing.T) {
	t.Parallel()

	r, err := Solve(0.001, 1.12, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Cells)
	assert.Equal(t, 0.01, r.Corrected)
}

func TestSolve_FlatPlateDefaults(t *testing.T) {
	t.Parallel()

	// 0.02 m at the default base cell needs ten cells (S(9) ~ 0.01827, S(10) ~ 0.02169).
	r, err := Solve(0.02, DefaultRatio, DefaultBaseCell)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Cells)
	assert.InDelta(t, 0.021694, r.Corrected, 1e-6)
	assert.Greater(t, r.Difference, 0.0)
}

func TestSolve_TooManyCells(t *testing.T) {
	t.Parallel()

	_, err := Solve(1e6, 1.0000001, 1e-9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, studyerr.ErrParameter))
}

func TestSolveSigned(t *testing.T) {
	t.Parallel()

	neg, err := SolveSigned(-0.04, DefaultRatio, DefaultBaseCell)
	require.NoError(t, err)
	pos, err := Solve(0.04, DefaultRatio, DefaultBaseCell)
	require.NoError(t, err)

	assert.Equal(t, pos.Cells, neg.Cells)
	assert.Equal(t, -pos.Corrected, neg.Corrected)
	assert.Equal(t, -0.04, neg.Requested)
	assert.LessOrEqual(t, neg.Corrected, -0.04)
	assert.InDelta(t, neg.Corrected+0.04, neg.Difference, 1e-15)

	_, err = SolveSigned(0, DefaultRatio, DefaultBaseCell)
	assert.True(t, errors.Is(err, studyerr.ErrParameter))
}

func TestSum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Sum(0, 2, 1))
	assert.Equal(t, 1.0, Sum(1, 2, 1))
	assert.Equal(t, 15.0, Sum(4, 2, 1))
}
