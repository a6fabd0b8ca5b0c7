// Package compare computes consecutive-case differences of a sampled field.
package compare

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/paramstudy/internal/sample"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// Row is one query point across all cases. Deltas[k] and Percents[k]
// compare case k+1 with case k.
type Row struct {
	Index     int
	Query     [3]float64
	Values    []float64
	Distances []float64
	Deltas    []float64
	Percents  []float64
}

// PairStats summarises the deltas of one consecutive case pair.
type PairStats struct {
	From   string
	To     string
	Mean   float64
	StdDev float64 // population
	Min    float64
	Max    float64
	// MaxDistance is the worst nearest-point match in either case.
	MaxDistance float64
}

// Report is the comparison of one field across ordered cases.
type Report struct {
	Field  string
	Labels []string
	Rows   []Row
	Pairs  []PairStats
}

// Compare aligns the sampled series by query index and differences each
// consecutive pair. All series must have the same, non-zero length, and
// every sample must carry field.
func Compare(labels []string, series [][]sample.Result, field string) (*Report, error) {
	if len(series) < 2 {
		return nil, studyerr.Parameterf("cases", "comparison needs at least 2 cases, got %d", len(series))
	}
	if len(labels) != len(series) {
		return nil, studyerr.Parameterf("labels", "%d labels for %d cases", len(labels), len(series))
	}
	n := len(series[0])
	if n == 0 {
		return nil, studyerr.Parameterf("points", "no sample points")
	}
	for i, s := range series {
		if len(s) != n {
			return nil, studyerr.Parameterf("points", "case %s has %d samples, case %s has %d", labels[i], len(s), labels[0], n)
		}
	}

	r := &Report{Field: field, Labels: append([]string(nil), labels...), Rows: make([]Row, n)}
	pairs := len(series) - 1
	for j := 0; j < n; j++ {
		row := Row{
			Index:     j,
			Query:     series[0][j].Query,
			Values:    make([]float64, len(series)),
			Distances: make([]float64, len(series)),
			Deltas:    make([]float64, pairs),
			Percents:  make([]float64, pairs),
		}
		for i, s := range series {
			v, ok := s[j].Values[field]
			if !ok {
				return nil, studyerr.DataFormatf(labels[i], "no field %q in sampled data", field)
			}
			row.Values[i] = v
			row.Distances[i] = s[j].Distance
		}
		for k := 0; k < pairs; k++ {
			row.Deltas[k], row.Percents[k] = Delta(row.Values[k], row.Values[k+1])
		}
		r.Rows[j] = row
	}

	deltas := make([]float64, 0, n)
	for k := 0; k < pairs; k++ {
		ps := PairStats{From: labels[k], To: labels[k+1]}
		deltas = deltas[:0]
		for _, row := range r.Rows {
			// NaN or Inf samples from a diverged case stay in the rows
			// but are left out of the pair statistics.
			if d := row.Deltas[k]; finite(d) {
				deltas = append(deltas, d)
			}
			ps.MaxDistance = max(ps.MaxDistance, row.Distances[k], row.Distances[k+1])
		}
		if len(deltas) > 0 {
			ps.Mean, ps.StdDev = stat.PopMeanStdDev(deltas, nil)
			ps.Min = floats.Min(deltas)
			ps.Max = floats.Max(deltas)
		}
		r.Pairs = append(r.Pairs, ps)
	}
	return r, nil
}

// Delta returns to-from and the change as a percentage of from. The
// percentage is 0 when from is 0 or when it is not a finite number.
func Delta(from, to float64) (delta, percent float64) {
	delta = to - from
	if from == 0 {
		return delta, 0
	}
	percent = delta / from * 100
	if !finite(percent) {
		return delta, 0
	}
	return delta, percent
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// PairName labels the deltas from case a to case b in column headers.
func PairName(a, b string) string { return fmt.Sprintf("%s_%s", a, b) }
