package dataset

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

var (
	testPoints   = []float64{-0.02, 0, 0, -0.01, 0, 0, 0, 0, 0}
	testPressure = []float64{101300, 101310.5, 101325}
	testVelocity = []float32{1, 0.5, 2, 0.25, 3, 0}
)

const asciiVTU = `<?xml version="1.0"?>
<VTKFile type="UnstructuredGrid" version="1.0" byte_order="LittleEndian" header_type="UInt64">
  <UnstructuredGrid>
    <Piece NumberOfPoints="3" NumberOfCells="0">
      <PointData>
        <DataArray type="Float64" Name="Pressure" NumberOfComponents="1" format="ascii">
          101300 101310.5
          101325
        </DataArray>
        <DataArray type="Float32" Name="Velocity" NumberOfComponents="2" format="ascii">1 0.5 2 0.25 3 0</DataArray>
        <DataArray type="Int32" Name="Marker" format="ascii">0 1 -2</DataArray>
      </PointData>
      <Points>
        <DataArray type="Float64" NumberOfComponents="3" format="ascii">-0.02 0 0 -0.01 0 0 0 0 0</DataArray>
      </Points>
      <Cells></Cells>
    </Piece>
  </UnstructuredGrid>
</VTKFile>
`

func assertTestDataset(t *testing.T, ds *Dataset) {
	t.Helper()
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, [3]float64{-0.02, 0, 0}, ds.Points[0])
	assert.Equal(t, [3]float64{-0.01, 0, 0}, ds.Points[1])

	p, ok := ds.Field("Pressure")
	require.True(t, ok)
	assert.Equal(t, testPressure, p)

	vx, ok := ds.Field("Velocity[0]")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, vx)
	vy, ok := ds.Field("Velocity[1]")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.25, 0}, vy)
}

func TestParseVTU_ASCII(t *testing.T) {
	t.Parallel()

	ds, err := ParseVTU([]byte(asciiVTU), "flow.vtu")
	require.NoError(t, err)
	assertTestDataset(t, ds)

	m, ok := ds.Field("Marker")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, -2}, m)
	assert.Equal(t, []string{"Pressure", "Velocity[0]", "Velocity[1]", "Marker"}, ds.FieldNames())
}

func float64Bytes(order binary.ByteOrder, vs []float64) []byte {
	var buf bytes.Buffer
	for _, v := range vs {
		_ = binary.Write(&buf, order, math.Float64bits(v))
	}
	return buf.Bytes()
}

func float32Bytes(order binary.ByteOrder, vs []float32) []byte {
	var buf bytes.Buffer
	for _, v := range vs {
		_ = binary.Write(&buf, order, math.Float32bits(v))
	}
	return buf.Bytes()
}

func header(order binary.ByteOrder, size, n int) []byte {
	b := make([]byte, size)
	if size == 8 {
		order.PutUint64(b, uint64(n))
	} else {
		order.PutUint32(b, uint32(n))
	}
	return b
}

type blockEncoding int

const (
	separate blockEncoding = iota
	joint
)

func inline(order binary.ByteOrder, hsize int, payload []byte, enc blockEncoding) string {
	h := header(order, hsize, len(payload))
	if enc == joint {
		return base64.StdEncoding.EncodeToString(append(h, payload...))
	}
	return base64.StdEncoding.EncodeToString(h) + base64.StdEncoding.EncodeToString(payload)
}

func binaryVTU(byteOrder, headerType string, order binary.ByteOrder, hsize int, enc blockEncoding) string {
	return fmt.Sprintf(`<VTKFile type="UnstructuredGrid" byte_order="%s" header_type="%s">
<UnstructuredGrid><Piece NumberOfPoints="3">
<PointData>
<DataArray type="Float64" Name="Pressure" format="binary">
  %s
</DataArray>
<DataArray type="Float32" Name="Velocity" NumberOfComponents="2" format="binary">%s</DataArray>
</PointData>
<Points><DataArray type="Float64" NumberOfComponents="3" format="binary">%s</DataArray></Points>
</Piece></UnstructuredGrid></VTKFile>`, byteOrder, headerType,
		inline(order, hsize, float64Bytes(order, testPressure), enc),
		inline(order, hsize, float32Bytes(order, testVelocity), enc),
		inline(order, hsize, float64Bytes(order, testPoints), enc))
}

func TestParseVTU_InlineBinary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		byteOrder  string
		headerType string
		order      binary.ByteOrder
		hsize      int
		enc        blockEncoding
	}{
		{"uint32 separate", "LittleEndian", "UInt32", binary.LittleEndian, 4, separate},
		{"uint32 joint", "LittleEndian", "UInt32", binary.LittleEndian, 4, joint},
		{"default header", "LittleEndian", "", binary.LittleEndian, 4, separate},
		{"uint64 separate", "LittleEndian", "UInt64", binary.LittleEndian, 8, separate},
		{"uint64 joint", "LittleEndian", "UInt64", binary.LittleEndian, 8, joint},
		{"big endian", "BigEndian", "UInt32", binary.BigEndian, 4, separate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := binaryVTU(tt.byteOrder, tt.headerType, tt.order, tt.hsize, tt.enc)
			ds, err := ParseVTU([]byte(doc), "flow.vtu")
			require.NoError(t, err)
			assertTestDataset(t, ds)
		})
	}
}

// appendedVTU lays out pressure, velocity and points back to back in the
// appended block, each with a UInt32 size header.
func appendedVTU(encoding string) []byte {
	order := binary.LittleEndian
	blocks := [][]byte{
		float64Bytes(order, testPressure),
		float32Bytes(order, testVelocity),
		float64Bytes(order, testPoints),
	}
	var body bytes.Buffer
	offsets := make([]int, len(blocks))
	for i, b := range blocks {
		offsets[i] = body.Len()
		h := header(order, 4, len(b))
		if encoding == "base64" {
			body.WriteString(base64.StdEncoding.EncodeToString(h))
			body.WriteString(base64.StdEncoding.EncodeToString(b))
		} else {
			body.Write(h)
			body.Write(b)
		}
	}
	var doc bytes.Buffer
	fmt.Fprintf(&doc, `<VTKFile type="UnstructuredGrid" byte_order="LittleEndian" header_type="UInt32">
<UnstructuredGrid><Piece NumberOfPoints="3">
<PointData>
<DataArray type="Float64" Name="Pressure" format="appended" offset="%d"/>
<DataArray type="Float32" Name="Velocity" NumberOfComponents="2" format="appended" offset="%d"/>
</PointData>
<Points><DataArray type="Float64" NumberOfComponents="3" format="appended" offset="%d"/></Points>
</Piece></UnstructuredGrid>
<AppendedData encoding="%s">
   _`, offsets[0], offsets[1], offsets[2], encoding)
	doc.Write(body.Bytes())
	doc.WriteString("\n</AppendedData>\n</VTKFile>\n")
	return doc.Bytes()
}

func TestParseVTU_Appended(t *testing.T) {
	t.Parallel()

	for _, enc := range []string{"raw", "base64"} {
		t.Run(enc, func(t *testing.T) {
			t.Parallel()
			ds, err := ParseVTU(appendedVTU(enc), "flow.vtu")
			require.NoError(t, err)
			assertTestDataset(t, ds)
		})
	}
}

func TestParseVTU_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not xml":          "this is not a vtu",
		"wrong type":       strings.Replace(asciiVTU, "UnstructuredGrid\" version", "PolyData\" version", 1),
		"compressed":       strings.Replace(asciiVTU, `header_type="UInt64"`, `header_type="UInt64" compressor="vtkZLibDataCompressor"`, 1),
		"short array":      strings.Replace(asciiVTU, "101325\n", "\n", 1),
		"bad number":       strings.Replace(asciiVTU, "101325", "1.0.1", 1),
		"unknown type":     strings.Replace(asciiVTU, `type="Int32"`, `type="Complex"`, 1),
		"unknown format":   strings.Replace(asciiVTU, `Name="Marker" format="ascii"`, `Name="Marker" format="hex"`, 1),
		"bad header type":  strings.Replace(asciiVTU, `header_type="UInt64"`, `header_type="UInt16"`, 1),
		"duplicate field":  strings.Replace(asciiVTU, `Name="Marker"`, `Name="Pressure"`, 1),
		"no points":        strings.NewReplacer("<Points>", "<Ignored>", "</Points>", "</Ignored>").Replace(asciiVTU),
		"missing appended": strings.Replace(asciiVTU, `Name="Marker" format="ascii"`, `Name="Marker" format="appended" offset="0"`, 1),
		"negative points":  strings.Replace(asciiVTU, `NumberOfPoints="3"`, `NumberOfPoints="-1"`, 1),
		"huge components":  strings.Replace(asciiVTU, `Name="Velocity" NumberOfComponents="2"`, `Name="Velocity" NumberOfComponents="9223372036854775807"`, 1),
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseVTU([]byte(doc), "flow.vtu")
			require.Error(t, err)
			assert.ErrorIs(t, err, studyerr.ErrDataFormat)
		})
	}
}

func TestLoad_ByExtension(t *testing.T) {
	t.Parallel()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/work/flow_c1.vtu", []byte(asciiVTU), 0o644))

	ds, err := Load(fsys, "/work/flow_c1.vtu")
	require.NoError(t, err)
	assert.Equal(t, "/work/flow_c1.vtu", ds.Path)

	_, err = Load(fsys, "/work/flow_c1.dat")
	assert.Error(t, err)
	_, err = Load(fsys, "/work/none.vtu")
	assert.Error(t, err)
}
