// Package report writes the study's tabular summaries and charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/banshee-data/paramstudy/internal/history"
)

// SummaryRow is the final state of one case.
type SummaryRow struct {
	CaseID    string
	Primary   float64
	Secondary float64
	HasParams bool
	Final     history.Final
}

// Summary is one row per case with the last-iteration outputs.
type Summary struct {
	PrimaryName   string
	SecondaryName string
	Rows          []SummaryRow
}

// Add appends a case.
func (s *Summary) Add(caseID string, primary, secondary float64, hasParams bool, log *history.Log) {
	s.Rows = append(s.Rows, SummaryRow{
		CaseID:    caseID,
		Primary:   primary,
		Secondary: secondary,
		HasParams: hasParams,
		Final:     log.Summarize(),
	})
}

// residualColumns is the union of residual names in first-seen order.
func (s *Summary) residualColumns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range s.Rows {
		for _, name := range sortedKeys(r.Final.Residuals) {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	return cols
}

func (s *Summary) header() []string {
	h := []string{"case_id", s.PrimaryName, s.SecondaryName, "cd", "cl", "iterations"}
	return append(h, s.residualColumns()...)
}

func (s *Summary) record(r SummaryRow, residuals []string) []string {
	rec := []string{r.CaseID, na, na, na, na, strconv.Itoa(r.Final.Iterations)}
	if r.HasParams {
		rec[1] = fmt.Sprintf("%.4f", r.Primary)
		rec[2] = fmt.Sprintf("%.4f", r.Secondary)
	}
	if r.Final.HasDrag {
		rec[3] = fmt.Sprintf("%.6f", r.Final.Drag)
	}
	if r.Final.HasLift {
		rec[4] = fmt.Sprintf("%.6f", r.Final.Lift)
	}
	for _, name := range residuals {
		v, ok := r.Final.Residuals[name]
		if !ok {
			rec = append(rec, na)
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'g', 6, 64))
	}
	return rec
}

const na = "N/A"

// WriteCSV writes summary_results.csv.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	residuals := s.residualColumns()
	if err := cw.Write(s.header()); err != nil {
		return err
	}
	for _, r := range s.Rows {
		if err := cw.Write(s.record(r, residuals)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable prints the summary aligned for a terminal, without residuals.
func (s *Summary) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	h := s.header()[:6]
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", h[0], h[1], h[2], h[3], h[4], h[5])
	for _, r := range s.Rows {
		rec := s.record(r, nil)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rec[0], rec[1], rec[2], rec[3], rec[4], rec[5])
	}
	return tw.Flush()
}
