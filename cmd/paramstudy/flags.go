package main

import (
	"flag"
	"log"

	"github.com/banshee-data/paramstudy/internal/config"
	"github.com/banshee-data/paramstudy/internal/procexec"
)

// studyFlags are the flags shared by every study subcommand. Values given
// on the command line override the study file.
type studyFlags struct {
	fs *flag.FlagSet

	configPath     string
	preset         string
	primary        string
	secondary      string
	fixedSecondary float64
	workers        int
	onFailure      string
	inPlace        bool
	workDir        string
	template       string
	solver         string
	mesher         string
	meshDir        string
	database       string
	resultsDir     string
	debug          bool
}

func addStudyFlags(fs *flag.FlagSet) *studyFlags {
	f := &studyFlags{fs: fs}
	fs.StringVar(&f.configPath, "config", "", "study file (.json, .yaml or .yml)")
	fs.StringVar(&f.preset, "preset", "", "built-in sweep (vary-d, vary-h, matrix)")
	fs.StringVar(&f.primary, "primary", "", "primary values: comma list or start:stop:step")
	fs.StringVar(&f.secondary, "secondary", "", "secondary values: comma list or start:stop:step")
	fs.Float64Var(&f.fixedSecondary, "fixed-secondary", 0.03, "secondary value for a single-axis sweep")
	fs.IntVar(&f.workers, "workers", 1, "number of cases run at once")
	fs.StringVar(&f.onFailure, "on-failure", "continue", "failure policy: continue or stop")
	fs.BoolVar(&f.inPlace, "in-place", false, "edit the shared config in place (legacy, 1 worker)")
	fs.StringVar(&f.workDir, "work-dir", "cases", "parent directory of the case directories")
	fs.StringVar(&f.template, "template", "lam_flatplate.cfg", "solver config template")
	fs.StringVar(&f.solver, "solver", "SU2_CFD", "solver executable")
	fs.StringVar(&f.mesher, "mesher", "gmsh", "mesher executable; empty copies meshes from -mesh-dir")
	fs.StringVar(&f.meshDir, "mesh-dir", ".", "directory of prebuilt mesh_<id>.su2 files")
	fs.StringVar(&f.database, "db", "paramstudy.db", "run store")
	fs.StringVar(&f.resultsDir, "results", "results", "directory for reports and charts")
	fs.BoolVar(&f.debug, "debug", false, "log every external command")
	return f
}

// load reads the study file, if any, then applies the flags that were
// set explicitly.
func (f *studyFlags) load() (*config.StudyConfig, error) {
	cfg := &config.StudyConfig{}
	if f.configPath != "" {
		loaded, err := config.LoadStudyConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "preset":
			cfg.Preset = &f.preset
		case "primary":
			cfg.Primary = &f.primary
		case "secondary":
			cfg.Secondary = &f.secondary
		case "fixed-secondary":
			cfg.FixedSecondary = &f.fixedSecondary
		case "workers":
			cfg.Workers = &f.workers
		case "on-failure":
			cfg.OnFailure = &f.onFailure
		case "in-place":
			cfg.InPlace = &f.inPlace
		case "work-dir":
			cfg.WorkDir = &f.workDir
		case "template":
			cfg.Template = &f.template
		case "solver":
			cfg.Solver = &f.solver
		case "mesher":
			cfg.Mesher = &f.mesher
		case "mesh-dir":
			cfg.MeshDir = &f.meshDir
		case "db":
			cfg.Database = &f.database
		case "results":
			cfg.ResultsDir = &f.resultsDir
		}
	})
	// A single-axis sweep from flags alone still needs its fixed value.
	if cfg.FixedSecondary == nil && cfg.Primary != nil {
		cfg.FixedSecondary = &f.fixedSecondary
	}

	if err := cfg.Validate(); err != nil {
		return nil, usagef("%v", err)
	}
	return cfg, nil
}

// runner returns the process runner, tracing commands when -debug is set.
func (f *studyFlags) runner() *procexec.Runner {
	r := procexec.NewRunner()
	if f.debug {
		r.Logger = debugLogger{}
	}
	return r
}

type debugLogger struct{}

func (debugLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
