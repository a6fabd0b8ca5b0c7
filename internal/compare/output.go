package compare

import (
	"encoding/csv"
	"io"
	"strconv"
)

func format(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }

// WriteCSV writes one row per query point: X, Y, Z, the field value for
// every case, then the deltas and percent deltas of every consecutive pair.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"X", "Y", "Z"}
	for _, l := range r.Labels {
		header = append(header, r.Field+"_"+l)
	}
	for k := 0; k+1 < len(r.Labels); k++ {
		header = append(header, "Delta_"+PairName(r.Labels[k], r.Labels[k+1]))
	}
	for k := 0; k+1 < len(r.Labels); k++ {
		header = append(header, "Pct_"+PairName(r.Labels[k], r.Labels[k+1]))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := make([]string, 0, len(header))
		for _, c := range row.Query {
			rec = append(rec, format(c))
		}
		for _, v := range row.Values {
			rec = append(rec, format(v))
		}
		for _, d := range row.Deltas {
			rec = append(rec, format(d))
		}
		for _, p := range row.Percents {
			rec = append(rec, format(p))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatsCSV writes one row per consecutive case pair.
func (r *Report) WriteStatsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"from", "to", "mean", "stddev", "min", "max", "max_distance"}); err != nil {
		return err
	}
	for _, p := range r.Pairs {
		if err := cw.Write([]string{p.From, p.To, format(p.Mean), format(p.StdDev), format(p.Min), format(p.Max), format(p.MaxDistance)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
