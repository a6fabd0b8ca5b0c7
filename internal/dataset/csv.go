package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

var coordColumns = []string{"X", "Y", "Z"}

// WriteCSV writes one row per point: X, Y, Z, then every field in
// FieldNames order.
func (d *Dataset) WriteCSV(w io.Writer) error {
	names := d.FieldNames()
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string(nil), coordColumns...), names...)); err != nil {
		return err
	}
	row := make([]string, 3+len(names))
	for i, p := range d.Points {
		for c := 0; c < 3; c++ {
			row[c] = formatValue(p[c])
		}
		for j, n := range names {
			row[3+j] = formatValue(d.Fields[n][i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadCSV reads a dataset previously written by WriteCSV, or any CSV with
// X and Y columns (Z optional).
func LoadCSV(fsys fsutil.FileSystem, path string) (*Dataset, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(data), path)
}

// ParseCSV is LoadCSV on a reader.
func ParseCSV(r io.Reader, path string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, studyerr.DataFormatf(path, "empty dataset")
		}
		return nil, &studyerr.DataFormatError{Path: path, Line: 1, Reason: "unreadable header", Err: err}
	}
	coord := [3]int{-1, -1, -1}
	var fieldCols []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		switch h {
		case "X", "x", "Points:0":
			coord[0] = i
		case "Y", "y", "Points:1":
			coord[1] = i
		case "Z", "z", "Points:2":
			coord[2] = i
		default:
			fieldCols = append(fieldCols, i)
		}
	}
	if coord[0] < 0 || coord[1] < 0 {
		return nil, studyerr.DataFormatf(path, "dataset needs X and Y columns, have %v", header)
	}

	ds := New(path)
	columns := make([][]float64, len(fieldCols))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &studyerr.DataFormatError{Path: path, Reason: "malformed row", Err: err}
		}
		line, _ := cr.FieldPos(0)
		var p [3]float64
		for c, idx := range coord {
			if idx < 0 {
				continue
			}
			if p[c], err = strconv.ParseFloat(rec[idx], 64); err != nil {
				return nil, &studyerr.DataFormatError{Path: path, Line: line, Reason: header[idx] + " is not numeric", Err: err}
			}
		}
		ds.Points = append(ds.Points, p)
		for j, idx := range fieldCols {
			v, err := strconv.ParseFloat(rec[idx], 64)
			if err != nil {
				return nil, &studyerr.DataFormatError{Path: path, Line: line, Reason: header[idx] + " is not numeric", Err: err}
			}
			columns[j] = append(columns[j], v)
		}
	}
	for j, idx := range fieldCols {
		if columns[j] == nil {
			columns[j] = []float64{}
		}
		if err := ds.AddField(header[idx], columns[j]); err != nil {
			return nil, studyerr.DataFormatf(path, "%v", err)
		}
	}
	return ds, nil
}

// Load picks the reader by file extension.
func Load(fsys fsutil.FileSystem, path string) (*Dataset, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".vtu"):
		return LoadVTU(fsys, path)
	case strings.HasSuffix(strings.ToLower(path), ".csv"):
		return LoadCSV(fsys, path)
	}
	return nil, fmt.Errorf("unsupported dataset %s: want .vtu or .csv", path)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
