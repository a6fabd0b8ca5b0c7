package compare

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/sample"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

func series(field string, values ...float64) []sample.Result {
	out := make([]sample.Result, len(values))
	for i, v := range values {
		out[i] = sample.Result{
			Query:    [3]float64{-0.02 + 0.01*float64(i), 0, 0},
			Index:    i,
			Values:   map[string]float64{field: v},
			Distance: 0.001 * float64(i),
		}
	}
	return out
}

func TestCompare_SelfIsZero(t *testing.T) {
	t.Parallel()

	s := series("Pressure", 101300, 0, -5, 101325)
	r, err := Compare([]string{"a", "a2"}, [][]sample.Result{s, s}, "Pressure")
	require.NoError(t, err)

	for _, row := range r.Rows {
		assert.Equal(t, []float64{0}, row.Deltas)
		assert.Equal(t, []float64{0}, row.Percents)
	}
	require.Len(t, r.Pairs, 1)
	ps := r.Pairs[0]
	assert.Equal(t, "a", ps.From)
	assert.Equal(t, "a2", ps.To)
	assert.Zero(t, ps.Mean)
	assert.Zero(t, ps.StdDev)
	assert.Zero(t, ps.Min)
	assert.Zero(t, ps.Max)
	assert.InDelta(t, 0.003, ps.MaxDistance, 1e-15)
}

func TestCompare_ZeroBaselinePercent(t *testing.T) {
	t.Parallel()

	r, err := Compare([]string{"a", "b"}, [][]sample.Result{series("P", 0, 10), series("P", 5, 15)}, "P")
	require.NoError(t, err)

	assert.Equal(t, 5.0, r.Rows[0].Deltas[0])
	assert.Equal(t, 0.0, r.Rows[0].Percents[0])
	assert.InDelta(t, 50.0, r.Rows[1].Percents[0], 1e-12)
	for _, row := range r.Rows {
		for _, p := range row.Percents {
			assert.False(t, math.IsNaN(p) || math.IsInf(p, 0))
		}
	}

	tests := map[string]struct {
		from, to  float64
		wantDelta float64
	}{
		"subnormal baseline": {from: 5e-324, to: 1, wantDelta: 1},
		"tiny baseline":      {from: 1e-300, to: 1e300, wantDelta: 1e300},
		"nan baseline":       {from: math.NaN(), to: 1, wantDelta: math.NaN()},
		"nan value":          {from: 1, to: math.NaN(), wantDelta: math.NaN()},
		"infinite value":     {from: 1, to: math.Inf(1), wantDelta: math.Inf(1)},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			delta, percent := Delta(tt.from, tt.to)
			assert.Equal(t, 0.0, percent)
			if math.IsNaN(tt.wantDelta) {
				assert.True(t, math.IsNaN(delta))
			} else {
				assert.Equal(t, tt.wantDelta, delta)
			}
		})
	}
}

func TestCompare_NonFiniteValuesSkippedInStats(t *testing.T) {
	t.Parallel()

	a := series("P", 1, 2, 3)
	b := series("P", 2, math.NaN(), 5)
	r, err := Compare([]string{"a", "b"}, [][]sample.Result{a, b}, "P")
	require.NoError(t, err)

	assert.True(t, math.IsNaN(r.Rows[1].Deltas[0]))
	assert.Equal(t, 0.0, r.Rows[1].Percents[0])
	ps := r.Pairs[0]
	assert.InDelta(t, 1.5, ps.Mean, 1e-12)
	assert.InDelta(t, 0.5, ps.StdDev, 1e-12)
	assert.Equal(t, 1.0, ps.Min)
	assert.Equal(t, 2.0, ps.Max)

	all := series("P", math.NaN(), math.NaN())
	r, err = Compare([]string{"a", "b"}, [][]sample.Result{all, series("P", 1, 2)}, "P")
	require.NoError(t, err)
	assert.Equal(t, PairStats{From: "a", To: "b", MaxDistance: 0.001}, r.Pairs[0])
}

func TestCompare_PairStatistics(t *testing.T) {
	t.Parallel()

	a := series("P", 1, 2, 3, 4)
	b := series("P", 2, 4, 6, 8)   // deltas 1 2 3 4
	c := series("P", 2, 4, 6, 8.5) // deltas 0 0 0 0.5
	r, err := Compare([]string{"d002", "d004", "d006"}, [][]sample.Result{a, b, c}, "P")
	require.NoError(t, err)
	require.Len(t, r.Pairs, 2)

	ab := r.Pairs[0]
	assert.Equal(t, "d002", ab.From)
	assert.Equal(t, "d004", ab.To)
	assert.InDelta(t, 2.5, ab.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), ab.StdDev, 1e-12)
	assert.Equal(t, 1.0, ab.Min)
	assert.Equal(t, 4.0, ab.Max)

	bc := r.Pairs[1]
	assert.InDelta(t, 0.125, bc.Mean, 1e-12)
	assert.Equal(t, 0.0, bc.Min)
	assert.Equal(t, 0.5, bc.Max)

	assert.Equal(t, []float64{3, 6, 6}, r.Rows[2].Values)
	assert.Equal(t, []float64{3, 0}, r.Rows[2].Deltas)
	assert.InDelta(t, 100, r.Rows[2].Percents[0], 1e-12)
}

func TestCompare_Errors(t *testing.T) {
	t.Parallel()

	s := series("P", 1, 2)
	_, err := Compare([]string{"a"}, [][]sample.Result{s}, "P")
	assert.ErrorIs(t, err, studyerr.ErrParameter)

	_, err = Compare([]string{"a"}, [][]sample.Result{s, s}, "P")
	assert.ErrorIs(t, err, studyerr.ErrParameter)

	_, err = Compare([]string{"a", "b"}, [][]sample.Result{s, series("P", 1)}, "P")
	assert.ErrorIs(t, err, studyerr.ErrParameter)

	_, err = Compare([]string{"a", "b"}, [][]sample.Result{{}, {}}, "P")
	assert.ErrorIs(t, err, studyerr.ErrParameter)

	_, err = Compare([]string{"a", "b"}, [][]sample.Result{s, series("Q", 1, 2)}, "P")
	assert.ErrorIs(t, err, studyerr.ErrDataFormat)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	r, err := Compare([]string{"a", "b", "c"}, [][]sample.Result{series("P", 1, 2), series("P", 2, 2), series("P", 4, 1)}, "P")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "X,Y,Z,P_a,P_b,P_c,Delta_a_b,Delta_b_c,Pct_a_b,Pct_b_c", lines[0])
	assert.Equal(t, "-0.02,0,0,1,2,4,1,2,100,100", lines[1])
	assert.Equal(t, "-0.01,0,0,2,2,1,0,-1,0,-50", lines[2])

	buf.Reset()
	require.NoError(t, r.WriteStatsCSV(&buf))
	lines = strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "from,to,mean,stddev,min,max,max_distance", lines[0])
	assert.Equal(t, "a,b,0.5,0.5,0,1,0.001", lines[1])
}
