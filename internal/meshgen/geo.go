// Package meshgen renders gmsh geometry descriptors for a study case and
// builds the mesher command line.
package meshgen

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"text/template"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/spacing"
	"github.com/banshee-data/paramstudy/internal/studyerr"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Flat-plate domain constants.
const (
	DefaultPlateLength   = 0.3048
	DefaultPlateCells    = 41
	DefaultVerticalCells = 65
	DefaultVerticalRatio = 1.2
)

// Geometry is the data handed to a .geo template.
type Geometry struct {
	CaseID        string
	XInlet        string // corrected, signed
	Height        string
	Ratio         string
	VerticalRatio string
	PlateLength   string
	InletCells    int
	PlateCells    int
	VerticalCells int
}

// Renderer renders .geo files. A zero Renderer is not usable; see
// NewRenderer and ParseTemplate.
type Renderer struct {
	tmpl          *template.Template
	PrimaryName   string
	SecondaryName string
	PlateLength   float64
	PlateCells    int
	VerticalCells int
	VerticalRatio float64
}

// NewRenderer returns a Renderer using the embedded flat-plate template.
func NewRenderer() *Renderer {
	t := template.Must(template.New("flatplate.geo.tmpl").Option("missingkey=error").ParseFS(templateFS, "templates/flatplate.geo.tmpl"))
	return newRenderer(t)
}

// ParseTemplate returns a Renderer for a user-supplied template file.
func ParseTemplate(fsys fsutil.FileSystem, path string) (*Renderer, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geometry template: %w", err)
	}
	t, err := template.New(path).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse geometry template %s: %w", path, err)
	}
	return newRenderer(t), nil
}

func newRenderer(t *template.Template) *Renderer {
	return &Renderer{
		tmpl:          t,
		PrimaryName:   sweep.DefaultPrimaryName,
		SecondaryName: sweep.DefaultSecondaryName,
		PlateLength:   DefaultPlateLength,
		PlateCells:    DefaultPlateCells,
		VerticalCells: DefaultVerticalCells,
		VerticalRatio: DefaultVerticalRatio,
	}
}

// GeometryFor builds the template data for c. The case must carry a
// spacing result: the inlet edge uses the corrected distance and its cell
// count so the mesh matches what the case id promises.
func (r *Renderer) GeometryFor(c sweep.CaseDescriptor) (Geometry, error) {
	sp, ok := c.Spacing()
	if !ok {
		return Geometry{}, studyerr.Parameterf(r.PrimaryName, "case %s has no spacing result; enable discretisation", c.ID())
	}
	x, ok := c.CorrectedParam(r.PrimaryName)
	if !ok {
		return Geometry{}, studyerr.Parameterf(r.PrimaryName, "case %s has no %s parameter", c.ID(), r.PrimaryName)
	}
	h, ok := c.CorrectedParam(r.SecondaryName)
	if !ok {
		return Geometry{}, studyerr.Parameterf(r.SecondaryName, "case %s has no %s parameter", c.ID(), r.SecondaryName)
	}
	if h <= 0 {
		return Geometry{}, studyerr.Parameterf(r.SecondaryName, "domain height %g must be positive", h)
	}
	return Geometry{
		CaseID:        c.ID(),
		XInlet:        formatFloat(x),
		Height:        formatFloat(h),
		Ratio:         formatFloat(ratioOrDefault(sp)),
		VerticalRatio: formatFloat(r.VerticalRatio),
		PlateLength:   formatFloat(r.PlateLength),
		InletCells:    sp.Cells,
		PlateCells:    r.PlateCells,
		VerticalCells: r.VerticalCells,
	}, nil
}

// Render returns the .geo text for c.
func (r *Renderer) Render(c sweep.CaseDescriptor) ([]byte, error) {
	g, err := r.GeometryFor(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, g); err != nil {
		return nil, fmt.Errorf("render geometry for %s: %w", c.ID(), err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders c into path.
func (r *Renderer) WriteFile(fsys fsutil.FileSystem, path string, c sweep.CaseDescriptor) error {
	data, err := r.Render(c)
	if err != nil {
		return err
	}
	return fsys.WriteFile(path, data, 0o644)
}

// GeoFilename is the descriptor name for a case.
func GeoFilename(caseID string) string { return "geom_" + caseID + ".geo" }

// MesherArgs is the argument list for a 2D SU2 mesh export.
func MesherArgs(geoPath, meshPath string) []string {
	return []string{geoPath, "-2", "-format", "su2", "-o", meshPath}
}

func ratioOrDefault(sp spacing.Result) float64 {
	if sp.Ratio > 1 {
		return sp.Ratio
	}
	return spacing.DefaultRatio
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
