package dataset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// VTK XML UnstructuredGrid (.vtu) support: point coordinates and
// point data arrays in ascii, inline base64 binary, or appended (raw or
// base64) encoding. Compressed files are rejected.

type vtkFile struct {
	Type       string      `xml:"type,attr"`
	ByteOrder  string      `xml:"byte_order,attr"`
	HeaderType string      `xml:"header_type,attr"`
	Compressor string      `xml:"compressor,attr"`
	Pieces     []vtkPiece  `xml:"UnstructuredGrid>Piece"`
	Appended   vtkAppended `xml:"AppendedData"`
}

type vtkPiece struct {
	NumberOfPoints int            `xml:"NumberOfPoints,attr"`
	Points         []vtkDataArray `xml:"Points>DataArray"`
	PointData      []vtkDataArray `xml:"PointData>DataArray"`
}

type vtkDataArray struct {
	Type       string `xml:"type,attr"`
	Name       string `xml:"Name,attr"`
	Components int    `xml:"NumberOfComponents,attr"`
	Format     string `xml:"format,attr"`
	Offset     string `xml:"offset,attr"`
	Text       string `xml:",chardata"`
}

type vtkAppended struct {
	Encoding string `xml:"encoding,attr"`
}

// LoadVTU reads a .vtu file.
func LoadVTU(fsys fsutil.FileSystem, path string) (*Dataset, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseVTU(data, path)
}

// ParseVTU decodes a .vtu document. Every failure is a DataFormatError.
func ParseVTU(data []byte, path string) (*Dataset, error) {
	doc, appended, err := splitAppended(data)
	if err != nil {
		return nil, studyerr.DataFormatf(path, "%v", err)
	}
	var f vtkFile
	if err := xml.Unmarshal(doc, &f); err != nil {
		return nil, &studyerr.DataFormatError{Path: path, Reason: "invalid VTK XML", Err: err}
	}
	if f.Type != "UnstructuredGrid" {
		return nil, studyerr.DataFormatf(path, "VTK file type %q, want UnstructuredGrid", f.Type)
	}
	if f.Compressor != "" {
		return nil, studyerr.DataFormatf(path, "compressed VTU (%s) is not supported", f.Compressor)
	}
	if len(f.Pieces) != 1 {
		return nil, studyerr.DataFormatf(path, "%d pieces, want exactly 1", len(f.Pieces))
	}

	dec := &arrayDecoder{
		order:    binary.LittleEndian,
		header:   4,
		appended: appended,
		encoding: f.Appended.Encoding,
	}
	if f.ByteOrder == "BigEndian" {
		dec.order = binary.BigEndian
	}
	switch f.HeaderType {
	case "", "UInt32":
	case "UInt64":
		dec.header = 8
	default:
		return nil, studyerr.DataFormatf(path, "unsupported header_type %q", f.HeaderType)
	}

	piece := f.Pieces[0]
	n := piece.NumberOfPoints
	if n < 0 {
		return nil, studyerr.DataFormatf(path, "NumberOfPoints %d", n)
	}
	if len(piece.Points) != 1 {
		return nil, studyerr.DataFormatf(path, "piece has no point coordinates")
	}
	coords, err := dec.decode(piece.Points[0], n)
	if err != nil {
		return nil, studyerr.DataFormatf(path, "points: %v", err)
	}
	comps := components(piece.Points[0])
	ds := New(path)
	ds.Points = make([][3]float64, n)
	for i := 0; i < n; i++ {
		for c := 0; c < comps && c < 3; c++ {
			ds.Points[i][c] = coords[i*comps+c]
		}
	}

	for _, a := range piece.PointData {
		values, err := dec.decode(a, n)
		if err != nil {
			return nil, studyerr.DataFormatf(path, "array %s: %v", a.Name, err)
		}
		k := components(a)
		if k == 1 {
			if err := ds.AddField(a.Name, values); err != nil {
				return nil, studyerr.DataFormatf(path, "%v", err)
			}
			continue
		}
		for c := 0; c < k; c++ {
			col := make([]float64, n)
			for i := range col {
				col[i] = values[i*k+c]
			}
			if err := ds.AddField(fmt.Sprintf("%s[%d]", a.Name, c), col); err != nil {
				return nil, studyerr.DataFormatf(path, "%v", err)
			}
		}
	}
	return ds, nil
}

// splitAppended cuts the appended data block out of the document, since
// raw binary is not valid XML character data. The block starts after the
// '_' marker and runs to </AppendedData>.
func splitAppended(data []byte) (doc, appended []byte, err error) {
	open := bytes.Index(data, []byte("<AppendedData"))
	if open < 0 {
		return data, nil, nil
	}
	gt := bytes.IndexByte(data[open:], '>')
	if gt < 0 {
		return nil, nil, fmt.Errorf("unterminated AppendedData tag")
	}
	start := open + gt + 1
	marker := bytes.IndexByte(data[start:], '_')
	if marker < 0 {
		return nil, nil, fmt.Errorf("AppendedData without '_' marker")
	}
	end := bytes.LastIndex(data, []byte("</AppendedData>"))
	if end < start+marker {
		return nil, nil, fmt.Errorf("unterminated AppendedData block")
	}
	appended = data[start+marker+1 : end]
	doc = make([]byte, 0, len(data)-len(appended))
	doc = append(doc, data[:start]...)
	doc = append(doc, data[end:]...)
	return doc, appended, nil
}

func components(a vtkDataArray) int {
	if a.Components < 1 {
		return 1
	}
	return a.Components
}

type arrayDecoder struct {
	order    binary.ByteOrder
	header   int
	appended []byte
	encoding string
}

func (d *arrayDecoder) decode(a vtkDataArray, points int) ([]float64, error) {
	k := components(a)
	if points < 0 || points > math.MaxInt/k {
		return nil, fmt.Errorf("%d points of %d components", points, k)
	}
	want := points * k
	size, ok := typeSizes[a.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported type %q", a.Type)
	}

	var values []float64
	switch a.Format {
	case "ascii":
		fields := strings.Fields(a.Text)
		values = make([]float64, len(fields))
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			values[i] = v
		}
	case "binary":
		raw, err := decodeBase64Block(strings.Join(strings.Fields(a.Text), ""), d.header, d.order)
		if err != nil {
			return nil, err
		}
		values, err = d.numbers(raw, a.Type, size)
		if err != nil {
			return nil, err
		}
	case "appended":
		raw, err := d.appendedBlock(a.Offset)
		if err != nil {
			return nil, err
		}
		values, err = d.numbers(raw, a.Type, size)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", a.Format)
	}

	if len(values) < want {
		return nil, fmt.Errorf("%d values, want %d", len(values), want)
	}
	return values[:want], nil
}

func (d *arrayDecoder) appendedBlock(offsetAttr string) ([]byte, error) {
	if d.appended == nil {
		return nil, fmt.Errorf("appended array without AppendedData")
	}
	offset, err := strconv.Atoi(strings.TrimSpace(offsetAttr))
	if err != nil || offset < 0 || offset >= len(d.appended) {
		return nil, fmt.Errorf("bad appended offset %q", offsetAttr)
	}
	switch d.encoding {
	case "raw":
		block := d.appended[offset:]
		if len(block) < d.header {
			return nil, fmt.Errorf("appended block truncated")
		}
		n := readHeader(block[:d.header], d.order)
		if uint64(len(block)-d.header) < n {
			return nil, fmt.Errorf("appended block declares %d bytes, %d available", n, len(block)-d.header)
		}
		return block[d.header : d.header+int(n)], nil
	case "base64":
		text := d.appended[offset:]
		hl := base64.StdEncoding.EncodedLen(d.header)
		if len(text) < hl {
			return nil, fmt.Errorf("appended block truncated")
		}
		hdr, err := base64.StdEncoding.DecodeString(string(text[:hl]))
		if err != nil || len(hdr) != d.header {
			return nil, fmt.Errorf("bad appended block header")
		}
		n := readHeader(hdr, d.order)
		dl := base64.StdEncoding.EncodedLen(int(n))
		if len(text) < hl+dl {
			return nil, fmt.Errorf("appended block truncated")
		}
		return base64.StdEncoding.DecodeString(string(text[hl : hl+dl]))
	default:
		return nil, fmt.Errorf("unsupported AppendedData encoding %q", d.encoding)
	}
}

// decodeBase64Block decodes an inline binary array. Writers either encode
// the size header and the payload separately or as one stream; both are
// accepted.
func decodeBase64Block(s string, header int, order binary.ByteOrder) ([]byte, error) {
	hl := base64.StdEncoding.EncodedLen(header)
	if len(s) >= hl {
		if hdr, err := base64.StdEncoding.DecodeString(s[:hl]); err == nil && len(hdr) == header {
			n := readHeader(hdr, order)
			if payload, err := base64.StdEncoding.DecodeString(s[hl:]); err == nil && uint64(len(payload)) >= n {
				return payload[:n], nil
			}
		}
	}
	all, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(all) < header {
		return nil, fmt.Errorf("binary block shorter than its header")
	}
	n := readHeader(all[:header], order)
	if uint64(len(all)-header) < n {
		return nil, fmt.Errorf("binary block declares %d bytes, %d available", n, len(all)-header)
	}
	return all[header : header+int(n)], nil
}

func readHeader(b []byte, order binary.ByteOrder) uint64 {
	if len(b) == 8 {
		return order.Uint64(b)
	}
	return uint64(order.Uint32(b))
}

var typeSizes = map[string]int{
	"Int8": 1, "UInt8": 1,
	"Int16": 2, "UInt16": 2,
	"Int32": 4, "UInt32": 4, "Float32": 4,
	"Int64": 8, "UInt64": 8, "Float64": 8,
}

func (d *arrayDecoder) numbers(raw []byte, typ string, size int) ([]float64, error) {
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s values", len(raw), typ)
	}
	out := make([]float64, len(raw)/size)
	for i := range out {
		b := raw[i*size : (i+1)*size]
		switch typ {
		case "Int8":
			out[i] = float64(int8(b[0]))
		case "UInt8":
			out[i] = float64(b[0])
		case "Int16":
			out[i] = float64(int16(d.order.Uint16(b)))
		case "UInt16":
			out[i] = float64(d.order.Uint16(b))
		case "Int32":
			out[i] = float64(int32(d.order.Uint32(b)))
		case "UInt32":
			out[i] = float64(d.order.Uint32(b))
		case "Int64":
			out[i] = float64(int64(d.order.Uint64(b)))
		case "UInt64":
			out[i] = float64(d.order.Uint64(b))
		case "Float32":
			out[i] = float64(math.Float32frombits(d.order.Uint32(b)))
		case "Float64":
			out[i] = math.Float64frombits(d.order.Uint64(b))
		}
	}
	return out, nil
}
