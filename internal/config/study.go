// Package config loads the study file that drives paramstudy.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/paramstudy/internal/batch"
	"github.com/banshee-data/paramstudy/internal/spacing"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

// Sweep modes.
const (
	ModeSingle   = "single"
	ModeCross    = "cross"
	ModeExplicit = "explicit"
)

// maxFileSize caps how much of a study file is read.
const maxFileSize = 1 * 1024 * 1024

// StudyConfig is the study file. Every field is optional; the Get*
// methods supply defaults for anything omitted, so a partial file is safe.
// Lists accept either "a,b,c" or a "start:stop:step" range.
type StudyConfig struct {
	// Sweep
	Preset         *string              `json:"preset,omitempty" yaml:"preset,omitempty"`
	Mode           *string              `json:"mode,omitempty" yaml:"mode,omitempty"`
	Primary        *string              `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary      *string              `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	FixedSecondary *float64             `json:"fixed_secondary,omitempty" yaml:"fixed_secondary,omitempty"`
	Cases          []sweep.ExplicitCase `json:"cases,omitempty" yaml:"cases,omitempty"`
	PrimaryName    *string              `json:"primary_name,omitempty" yaml:"primary_name,omitempty"`
	SecondaryName  *string              `json:"secondary_name,omitempty" yaml:"secondary_name,omitempty"`
	Discretize     *bool                `json:"discretize,omitempty" yaml:"discretize,omitempty"`
	Ratio          *float64             `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	BaseCell       *float64             `json:"base_cell,omitempty" yaml:"base_cell,omitempty"`
	IDScale        *float64             `json:"id_scale,omitempty" yaml:"id_scale,omitempty"`

	// Execution
	Workers     *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	OnFailure   *string `json:"on_failure,omitempty" yaml:"on_failure,omitempty"` // continue or stop
	InPlace     *bool   `json:"in_place,omitempty" yaml:"in_place,omitempty"`
	WorkDir     *string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	Template    *string `json:"template,omitempty" yaml:"template,omitempty"`
	Solver      *string `json:"solver,omitempty" yaml:"solver,omitempty"`
	Mesher      *string `json:"mesher,omitempty" yaml:"mesher,omitempty"` // empty string disables meshing
	GeoTemplate *string `json:"geo_template,omitempty" yaml:"geo_template,omitempty"`
	MeshDir     *string `json:"mesh_dir,omitempty" yaml:"mesh_dir,omitempty"`
	KeepLogs    *bool   `json:"keep_logs,omitempty" yaml:"keep_logs,omitempty"`
	Database    *string `json:"database,omitempty" yaml:"database,omitempty"`
	ResultsDir  *string `json:"results_dir,omitempty" yaml:"results_dir,omitempty"`

	// Sampling and comparison
	Field      *string   `json:"field,omitempty" yaml:"field,omitempty"`
	LineStart  []float64 `json:"line_start,omitempty" yaml:"line_start,omitempty"`
	LineEnd    []float64 `json:"line_end,omitempty" yaml:"line_end,omitempty"`
	LinePoints *int      `json:"line_points,omitempty" yaml:"line_points,omitempty"`
	SampleDims *int      `json:"sample_dims,omitempty" yaml:"sample_dims,omitempty"`
}

// LoadStudyConfig reads a .json, .yaml or .yml study file and validates it.
func LoadStudyConfig(path string) (*StudyConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &StudyConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *StudyConfig) Validate() error {
	if c.Preset != nil && *c.Preset != "" {
		if _, err := sweep.Preset(*c.Preset); err != nil {
			return err
		}
	}
	if c.Mode != nil {
		switch *c.Mode {
		case ModeSingle, ModeCross, ModeExplicit:
		default:
			return fmt.Errorf("mode must be single, cross or explicit, got %q", *c.Mode)
		}
	}
	for name, list := range map[string]*string{"primary": c.Primary, "secondary": c.Secondary} {
		if list == nil {
			continue
		}
		if _, err := sweep.ParseParamList(*list); err != nil {
			return fmt.Errorf("invalid %s list: %w", name, err)
		}
	}
	if c.Workers != nil {
		if *c.Workers < 1 || *c.Workers > runtime.NumCPU() {
			return fmt.Errorf("workers must be between 1 and %d, got %d", runtime.NumCPU(), *c.Workers)
		}
	}
	if c.OnFailure != nil {
		if _, err := batch.ParsePolicy(*c.OnFailure); err != nil {
			return err
		}
	}
	if c.Ratio != nil && (*c.Ratio <= 1 || math.IsInf(*c.Ratio, 0)) {
		return fmt.Errorf("ratio must be a finite number greater than 1, got %g", *c.Ratio)
	}
	if c.BaseCell != nil && (*c.BaseCell <= 0 || math.IsInf(*c.BaseCell, 0)) {
		return fmt.Errorf("base_cell must be positive, got %g", *c.BaseCell)
	}
	if c.IDScale != nil && *c.IDScale <= 0 {
		return fmt.Errorf("id_scale must be positive, got %g", *c.IDScale)
	}
	if c.LineStart != nil && len(c.LineStart) != 2 && len(c.LineStart) != 3 {
		return fmt.Errorf("line_start needs 2 or 3 coordinates, got %d", len(c.LineStart))
	}
	if c.LineEnd != nil && len(c.LineEnd) != 2 && len(c.LineEnd) != 3 {
		return fmt.Errorf("line_end needs 2 or 3 coordinates, got %d", len(c.LineEnd))
	}
	if c.LinePoints != nil && *c.LinePoints < 1 {
		return fmt.Errorf("line_points must be at least 1, got %d", *c.LinePoints)
	}
	if c.SampleDims != nil && *c.SampleDims != 2 && *c.SampleDims != 3 {
		return fmt.Errorf("sample_dims must be 2 or 3, got %d", *c.SampleDims)
	}
	return nil
}

// Specification builds the sweep. A preset wins over the other sweep
// fields. Without an explicit mode, cases imply explicit mode, a
// secondary list implies cross and anything else is a single-axis sweep.
func (c *StudyConfig) Specification() (sweep.Specification, error) {
	if c.Preset != nil && *c.Preset != "" {
		return sweep.Preset(*c.Preset)
	}
	mode := c.GetMode()
	primary, err := parseList(c.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	secondary, err := parseList(c.Secondary)
	if err != nil {
		return nil, fmt.Errorf("secondary: %w", err)
	}
	switch mode {
	case ModeExplicit:
		if len(c.Cases) == 0 {
			return nil, fmt.Errorf("explicit mode needs at least one case")
		}
		return sweep.Explicit{Cases: append([]sweep.ExplicitCase(nil), c.Cases...)}, nil
	case ModeCross:
		if len(primary) == 0 || len(secondary) == 0 {
			return nil, fmt.Errorf("cross mode needs primary and secondary values")
		}
		return sweep.CrossProduct{Primary: primary, Secondary: secondary}, nil
	default:
		if len(primary) == 0 {
			return nil, fmt.Errorf("no sweep given: set preset, primary or cases")
		}
		if c.FixedSecondary == nil {
			return nil, fmt.Errorf("single mode needs fixed_secondary")
		}
		return sweep.SingleAxis{FixedSecondary: *c.FixedSecondary, Primary: primary}, nil
	}
}

func parseList(s *string) ([]float64, error) {
	if s == nil {
		return nil, nil
	}
	return sweep.ParseParamList(*s)
}

// Generator returns a case generator configured from the file.
func (c *StudyConfig) Generator() *sweep.Generator {
	g := sweep.NewGenerator()
	g.PrimaryName = c.GetPrimaryName()
	g.SecondaryName = c.GetSecondaryName()
	g.Discretize = c.GetDiscretize()
	g.Ratio = c.GetRatio()
	g.BaseCell = c.GetBaseCell()
	g.IDs.Scale = c.GetIDScale()
	return g
}

// GetMode returns the sweep mode, inferred when unset.
func (c *StudyConfig) GetMode() string {
	if c.Mode != nil {
		return *c.Mode
	}
	switch {
	case len(c.Cases) > 0:
		return ModeExplicit
	case c.Secondary != nil && *c.Secondary != "":
		return ModeCross
	}
	return ModeSingle
}

// GetPrimaryName returns the primary parameter name or the default.
func (c *StudyConfig) GetPrimaryName() string {
	return stringOr(c.PrimaryName, sweep.DefaultPrimaryName)
}

// GetSecondaryName returns the secondary parameter name or the default.
func (c *StudyConfig) GetSecondaryName() string {
	return stringOr(c.SecondaryName, sweep.DefaultSecondaryName)
}

// GetDiscretize returns whether the primary distance is snapped to the mesh.
func (c *StudyConfig) GetDiscretize() bool {
	if c.Discretize == nil {
		return true
	}
	return *c.Discretize
}

// GetRatio returns the cell growth ratio or the default.
func (c *StudyConfig) GetRatio() float64 {
	if c.Ratio == nil {
		return spacing.DefaultRatio
	}
	return *c.Ratio
}

// GetBaseCell returns the first cell size or the default.
func (c *StudyConfig) GetBaseCell() float64 {
	if c.BaseCell == nil {
		return spacing.DefaultBaseCell
	}
	return *c.BaseCell
}

// GetIDScale returns the case id scale or the default.
func (c *StudyConfig) GetIDScale() float64 {
	if c.IDScale == nil {
		return sweep.DefaultIDScale
	}
	return *c.IDScale
}

// GetWorkers returns the worker count, 1 by default.
func (c *StudyConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetPolicy returns the failure policy, continue by default.
func (c *StudyConfig) GetPolicy() batch.FailurePolicy {
	if c.OnFailure == nil {
		return batch.ContinueAndRecord
	}
	p, err := batch.ParsePolicy(*c.OnFailure)
	if err != nil {
		return batch.ContinueAndRecord
	}
	return p
}

// GetInPlace reports whether the legacy shared-config mode is on.
func (c *StudyConfig) GetInPlace() bool {
	return c.InPlace != nil && *c.InPlace
}

// GetWorkDir returns the case directory root.
func (c *StudyConfig) GetWorkDir() string { return stringOr(c.WorkDir, "cases") }

// GetTemplate returns the solver config template path.
func (c *StudyConfig) GetTemplate() string { return stringOr(c.Template, "lam_flatplate.cfg") }

// GetSolver returns the solver executable name.
func (c *StudyConfig) GetSolver() string { return stringOr(c.Solver, "SU2_CFD") }

// GetMesher returns the mesher executable name. An explicit empty string
// turns meshing off so meshes are taken from MeshDir.
func (c *StudyConfig) GetMesher() string {
	if c.Mesher == nil {
		return "gmsh"
	}
	return *c.Mesher
}

// GetGeoTemplate returns the .geo template path, empty for the built-in one.
func (c *StudyConfig) GetGeoTemplate() string { return stringOr(c.GeoTemplate, "") }

// GetMeshDir returns where prebuilt meshes live.
func (c *StudyConfig) GetMeshDir() string { return stringOr(c.MeshDir, ".") }

// GetKeepLogs reports whether tool output is written to per-case logs.
func (c *StudyConfig) GetKeepLogs() bool {
	if c.KeepLogs == nil {
		return true
	}
	return *c.KeepLogs
}

// GetDatabase returns the run store path.
func (c *StudyConfig) GetDatabase() string { return stringOr(c.Database, "paramstudy.db") }

// GetResultsDir returns where reports and charts are written.
func (c *StudyConfig) GetResultsDir() string { return stringOr(c.ResultsDir, "results") }

// GetField returns the compared point field.
func (c *StudyConfig) GetField() string { return stringOr(c.Field, "Pressure") }

// GetLineStart returns the first sample point, (-0.02, 0, 0) by default.
func (c *StudyConfig) GetLineStart() [3]float64 {
	return point(c.LineStart, [3]float64{-0.02, 0, 0})
}

// GetLineEnd returns the last sample point, the plate leading edge by default.
func (c *StudyConfig) GetLineEnd() [3]float64 {
	return point(c.LineEnd, [3]float64{0, 0, 0})
}

// GetLinePoints returns the number of sample points.
func (c *StudyConfig) GetLinePoints() int {
	if c.LinePoints == nil {
		return 20
	}
	return *c.LinePoints
}

// GetSampleDims returns 2 for planar nearest-point matching, or 3.
func (c *StudyConfig) GetSampleDims() int {
	if c.SampleDims == nil {
		return 2
	}
	return *c.SampleDims
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func point(v []float64, def [3]float64) [3]float64 {
	if len(v) < 2 {
		return def
	}
	var p [3]float64
	copy(p[:], v)
	return p
}
