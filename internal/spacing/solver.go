// Package spacing derives geometric cell counts from a physical distance.
//
// A run of n cells whose first cell has length base and whose lengths grow by
// ratio covers S(n) = base*(ratio^n - 1)/(ratio - 1). Solve returns the
// smallest n with S(n) >= target together with the exact S(n), which is
// the distance the mesh will actually span.
package spacing

import (
	"math"

	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// DefaultRatio is the wall-normal growth ratio used by the flat plate study.
const DefaultRatio = 1.12

// DefaultBaseCell is the first cell length used by the flat plate study:
// 0.02 m spread over 24 cells growing at DefaultRatio.
var DefaultBaseCell = 0.02 / (1 + math.Pow(DefaultRatio, 24))

// MaxCells bounds the solution so absurd inputs fail instead of producing a
// mesh no mesher can build.
const MaxCells = 100000

// Result is the outcome of a geometric solve.
type Result struct {
	Cells       int     `json:"cells"`        // number of cells n
	Requested   float64 `json:"requested"`    // distance asked for
	Corrected   float64 `json:"corrected"`    // exact cumulative length of n cells
	Difference  float64 `json:"difference"`   // Corrected - Requested
	LargestCell float64 `json:"largest_cell"` // length of the last (largest) cell
	Ratio       float64 `json:"ratio"`
	BaseCell    float64 `json:"base_cell"`
}

// Solve computes the smallest cell count whose cumulative length reaches
// target. All inputs must be finite; target and base must be positive and
// ratio must exceed 1 (ratio == 1 is the linear case and is not handled).
func Solve(target, ratio, base float64) (Result, error) {
	if err := validate(target, ratio, base); err != nil {
		return Result{}, err
	}

	// Closed-form inversion of S(n) = target.
	x := math.Log(target*(ratio-1)/base+1) / math.Log(ratio)
	if math.IsNaN(x) || x > MaxCells {
		return Result{}, studyerr.Parameterf("target_distance",
			"%g needs more than %d cells at ratio %g and base cell %g", target, MaxCells, ratio, base)
	}
	n := int(math.Ceil(x))
	if n < 1 {
		n = 1
	}

	// The logarithms can land a hair either side of an integer.
	for n < MaxCells && Sum(n, ratio, base) < target {
		n++
	}
	for n > 1 && Sum(n-1, ratio, base) >= target {
		n--
	}

	corrected := Sum(n, ratio, base)
	return Result{
		Cells:       n,
		Requested:   target,
		Corrected:   corrected,
		Difference:  corrected - target,
		LargestCell: base * math.Pow(ratio, float64(n-1)),
		Ratio:       ratio,
		BaseCell:    base,
	}, nil
}

// SolveSigned solves on |target| and returns distances carrying the sign of
// target. Upstream boundaries sit at negative coordinates, so a distance of
// -0.04 yields a corrected value just below -0.04.
func SolveSigned(target, ratio, base float64) (Result, error) {
	if target == 0 {
		return Result{}, studyerr.Parameterf("target_distance", "must be non-zero")
	}
	r, err := Solve(math.Abs(target), ratio, base)
	if err != nil {
		return Result{}, err
	}
	if target < 0 {
		r.Corrected = -r.Corrected
	}
	r.Requested = target
	r.Difference = r.Corrected - target
	return r, nil
}

// Sum is the cumulative length of n cells.
func Sum(n int, ratio, base float64) float64 {
	if n <= 0 {
		return 0
	}
	return base * (math.Pow(ratio, float64(n)) - 1) / (ratio - 1)
}

func validate(target, ratio, base float64) error {
	inputs := []struct {
		name  string
		value float64
	}{{"target_distance", target}, {"ratio", ratio}, {"base_cell_size", base}}
	for _, in := range inputs {
		if math.IsNaN(in.value) || math.IsInf(in.value, 0) {
			return studyerr.Parameterf(in.name, "must be finite, got %g", in.value)
		}
	}
	if target <= 0 {
		return studyerr.Parameterf("target_distance", "must be > 0, got %g", target)
	}
	if ratio <= 1 {
		return studyerr.Parameterf("ratio", "must be > 1, got %g", ratio)
	}
	if base <= 0 {
		return studyerr.Parameterf("base_cell_size", "must be > 0, got %g", base)
	}
	return nil
}
