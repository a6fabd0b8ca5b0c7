// Package history loads the solver's convergence log (history.csv).
//
// The log is CSV with a quoted, space-padded header row followed by one
// numeric row per iteration. Column names are trimmed on load.
package history

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// Log is a parsed convergence history.
type Log struct {
	Path    string
	Columns []string
	Rows    [][]float64
}

// Load reads and parses the log at path.
func Load(fsys fsutil.FileSystem, path string) (*Log, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data), path)
}

// Parse reads a log from r. path is only used in error messages.
func Parse(r io.Reader, path string) (*Log, error) {
	br := bufio.NewReader(r)
	// The header is split by hand: the solver pads names with spaces
	// outside the quotes, which encoding/csv rejects.
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &studyerr.DataFormatError{Path: path, Line: 1, Reason: "unreadable header", Err: err}
	}
	if strings.TrimSpace(header) == "" {
		return nil, studyerr.DataFormatf(path, "empty convergence log")
	}
	log := &Log{Path: path}
	for _, h := range strings.Split(strings.TrimRight(header, "\r\n"), ",") {
		log.Columns = append(log.Columns, strings.TrimSpace(strings.Trim(strings.TrimSpace(h), `"`)))
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line + 1
			}
			return nil, &studyerr.DataFormatError{Path: path, Line: line, Reason: "malformed row", Err: err}
		}
		line, _ := cr.FieldPos(0)
		line++
		if len(rec) != len(log.Columns) {
			return nil, &studyerr.DataFormatError{Path: path, Line: line,
				Reason: "row has " + strconv.Itoa(len(rec)) + " fields, header has " + strconv.Itoa(len(log.Columns))}
		}
		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, &studyerr.DataFormatError{Path: path, Line: line, Reason: "column " + log.Columns[i] + " is not numeric", Err: err}
			}
			row[i] = v
		}
		log.Rows = append(log.Rows, row)
	}
	if len(log.Rows) == 0 {
		return nil, studyerr.DataFormatf(path, "convergence log has a header but no iterations")
	}
	return log, nil
}

// Index returns the position of a column.
func (l *Log) Index(name string) int {
	for i, c := range l.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of one column's values.
func (l *Log) Column(name string) ([]float64, bool) {
	i := l.Index(name)
	if i < 0 {
		return nil, false
	}
	out := make([]float64, len(l.Rows))
	for r, row := range l.Rows {
		out[r] = row[i]
	}
	return out, true
}

// Last returns the final iteration's values keyed by column.
func (l *Log) Last() map[string]float64 {
	last := l.Rows[len(l.Rows)-1]
	out := make(map[string]float64, len(l.Columns))
	for i, c := range l.Columns {
		out[c] = last[i]
	}
	return out
}
