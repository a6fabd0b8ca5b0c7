package batch

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

// Report holds one JobResult per submitted case.
type Report struct {
	RunID    string      `json:"run_id"`
	Workers  int         `json:"workers"`
	Policy   string      `json:"policy"`
	Started  time.Time   `json:"started"`
	Finished time.Time   `json:"finished"`
	Results  []JobResult `json:"results"`   // submission order
	Order    []string    `json:"completed"` // ids in completion order, dispatched cases only

	byID map[string]int
}

func newReport(runID string, cases []sweep.CaseDescriptor, workers int, policy FailurePolicy, started time.Time) *Report {
	if runID == "" {
		runID = uuid.New().String()
	}
	r := &Report{
		RunID:   runID,
		Workers: workers,
		Policy:  policy.String(),
		Started: started,
		Results: make([]JobResult, len(cases)),
		byID:    make(map[string]int, len(cases)),
	}
	for i, c := range cases {
		r.Results[i] = JobResult{CaseID: c.ID()}
		r.byID[c.ID()] = i
	}
	return r
}

func (r *Report) record(index int, res JobResult) {
	r.Results[index] = res
	r.Order = append(r.Order, res.CaseID)
}

func (r *Report) skip(index int, res JobResult) {
	r.Results[index] = res
}

// Result returns the result for a case id.
func (r *Report) Result(caseID string) (JobResult, bool) {
	i, ok := r.byID[caseID]
	if !ok {
		return JobResult{}, false
	}
	return r.Results[i], true
}

// Counts returns the number of successful and failed cases.
func (r *Report) Counts() (succeeded, failed int) {
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Succeeded lists the ids of successful cases in submission order.
func (r *Report) Succeeded() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			ids = append(ids, res.CaseID)
		}
	}
	return ids
}

// WriteTable prints the end-of-batch summary: one line per case with its
// status, elapsed time and the first line of any diagnostic.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tSTATUS\tELAPSED\tMESSAGE")
	for _, res := range r.Results {
		msg := firstLine(res.Diagnostic)
		if res.Status == StatusSuccess && res.Collection != nil && !res.Collection.Complete() {
			msg = fmt.Sprintf("%d artifact(s) missing", missingCount(res.Collection))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.CaseID, res.Status, res.Elapsed.Round(time.Millisecond), msg)
	}
	ok, failed := r.Counts()
	fmt.Fprintf(tw, "\ntotal %d\tsucceeded %d\tfailed %d\t\n", len(r.Results), ok, failed)
	return tw.Flush()
}

func missingCount(c *collect.Collection) int {
	n := 0
	for _, e := range c.Entries {
		if e.Outcome == collect.Missing {
			n++
		}
	}
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
