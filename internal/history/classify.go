package history

import "strings"

// Columns groups the columns of a log by meaning.
type Columns struct {
	Iteration string
	Residuals []string
	Drag      string
	Lift      string
	Time      []string
}

// Classify picks out the iteration, residual, force and timing columns.
// The first column counts iterations unless Inner_Iter is present; the
// first matching drag and lift columns win.
func Classify(columns []string) Columns {
	var c Columns
	for _, name := range columns {
		if name == "Inner_Iter" {
			c.Iteration = name
		}
	}
	if c.Iteration == "" && len(columns) > 0 {
		c.Iteration = columns[0]
	}
	for _, name := range columns {
		switch {
		case strings.Contains(strings.ToLower(name), "rms"):
			c.Residuals = append(c.Residuals, name)
		case c.Drag == "" && (strings.Contains(name, "Drag") || strings.Contains(name, "CD") || strings.Contains(name, "DRAG")):
			c.Drag = name
		case c.Lift == "" && (strings.Contains(name, "Lift") || strings.Contains(name, "CL") || strings.Contains(name, "LIFT")):
			c.Lift = name
		case name != c.Iteration && (strings.Contains(name, "Time") || strings.Contains(name, "Wall")):
			c.Time = append(c.Time, name)
		}
	}
	return c
}

// Final is the last-iteration summary of a log.
type Final struct {
	Iterations int
	Drag       float64
	HasDrag    bool
	Lift       float64
	HasLift    bool
	Residuals  map[string]float64
}

// Summarize extracts the final iteration count, forces and residuals.
func (l *Log) Summarize() Final {
	cols := Classify(l.Columns)
	last := l.Last()
	f := Final{
		Iterations: int(last[cols.Iteration]),
		Residuals:  make(map[string]float64, len(cols.Residuals)),
	}
	if cols.Drag != "" {
		f.Drag, f.HasDrag = last[cols.Drag], true
	}
	if cols.Lift != "" {
		f.Lift, f.HasLift = last[cols.Lift], true
	}
	for _, r := range cols.Residuals {
		f.Residuals[r] = last[r]
	}
	return f
}
