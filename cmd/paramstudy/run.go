package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/paramstudy/internal/batch"
	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/config"
	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/meshgen"
	"github.com/banshee-data/paramstudy/internal/security"
	"github.com/banshee-data/paramstudy/internal/store"
	"github.com/banshee-data/paramstudy/internal/sweep"
	"github.com/banshee-data/paramstudy/internal/timeutil"
)

func generateCases(cfg *config.StudyConfig) ([]sweep.CaseDescriptor, error) {
	spec, err := cfg.Specification()
	if err != nil {
		return nil, usagef("%v", err)
	}
	return cfg.Generator().Generate(spec)
}

func geometry(cfg *config.StudyConfig, fsys fsutil.FileSystem) (*meshgen.Renderer, error) {
	if path := cfg.GetGeoTemplate(); path != "" {
		return meshgen.ParseTemplate(fsys, path)
	}
	return meshgen.NewRenderer(), nil
}

func buildRunner(cfg *config.StudyConfig, sf *studyFlags, fsys fsutil.FileSystem) (batch.CaseRunner, error) {
	collector := collect.NewCollector()
	collector.FS = fsys
	if cfg.GetInPlace() {
		return &batch.InPlaceRunner{
			FS:        fsys,
			Exec:      sf.runner(),
			Collector: collector,
			Template:  cfg.GetTemplate(),
			Solver:    cfg.GetSolver(),
		}, nil
	}
	template, err := filepath.Abs(cfg.GetTemplate())
	if err != nil {
		return nil, err
	}
	solver, err := toolPath(cfg.GetSolver())
	if err != nil {
		return nil, err
	}
	mesher, err := toolPath(cfg.GetMesher())
	if err != nil {
		return nil, err
	}
	p := &batch.ProcessRunner{
		FS:        fsys,
		Exec:      sf.runner(),
		Collector: collector,
		WorkDir:   cfg.GetWorkDir(),
		Template:  template,
		Solver:    solver,
		Mesher:    mesher,
		MeshDir:   cfg.GetMeshDir(),
		KeepLogs:  cfg.GetKeepLogs(),
	}
	if p.Mesher != "" {
		if p.Geometry, err = geometry(cfg, fsys); err != nil {
			return nil, err
		}
	} else if p.MeshDir, err = filepath.Abs(p.MeshDir); err != nil {
		return nil, err
	}
	return p, nil
}

// toolPath makes a tool given by relative path absolute, since tools run
// inside the case directory. Bare names are left for PATH lookup.
func toolPath(name string) (string, error) {
	if name == "" || !strings.ContainsRune(name, filepath.Separator) || filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Abs(name)
}

// observers fans engine notifications out in order.
type observers []batch.Observer

func (o observers) CaseStarted(c sweep.CaseDescriptor) {
	for _, obs := range o {
		obs.CaseStarted(c)
	}
}

func (o observers) CaseFinished(r batch.JobResult) {
	for _, obs := range o {
		obs.CaseFinished(r)
	}
}

// progress logs one line per case event.
type progress struct {
	total, started, finished int
}

func (p *progress) CaseStarted(c sweep.CaseDescriptor) {
	p.started++
	log.Printf("[%d/%d] started %s", p.started, p.total, c.ID())
}

func (p *progress) CaseFinished(r batch.JobResult) {
	if !r.Dispatched {
		return
	}
	p.finished++
	log.Printf("[%d/%d] %s %s in %s", p.finished, p.total, r.CaseID, r.Status, r.Elapsed.Round(time.Millisecond))
}

func cmdRun(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	dryRun := fs.Bool("dry-run", false, "print the cases without running them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	cases, err := generateCases(cfg)
	if err != nil {
		return err
	}
	if *dryRun {
		return printCases(stdout, cfg, cases)
	}

	fsys := fsutil.OSFileSystem{}
	runner, err := buildRunner(cfg, sf, fsys)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.GetDatabase())
	if err != nil {
		return err
	}
	defer st.Close()

	clock := timeutil.RealClock{}
	runID := uuid.New().String()
	if err := st.BeginRun(store.RunRecord{
		RunID:     runID,
		Workers:   cfg.GetWorkers(),
		Policy:    cfg.GetPolicy().String(),
		Template:  cfg.GetTemplate(),
		StartedAt: clock.Now(),
	}, cases); err != nil {
		return err
	}
	log.Printf("run %s: %d cases, %d workers, on failure %s", runID, len(cases), cfg.GetWorkers(), cfg.GetPolicy())

	engine := &batch.Engine{
		Workers:  cfg.GetWorkers(),
		Policy:   cfg.GetPolicy(),
		Runner:   runner,
		Clock:    clock,
		RunID:    runID,
		Observer: observers{store.NewRecorder(st, runID, clock), &progress{total: len(cases)}},
	}
	report, runErr := engine.Run(ctx, cases)
	if report == nil {
		return runErr
	}

	if err := report.WriteTable(stdout); err != nil {
		return err
	}
	_, failed := report.Counts()
	if err := st.FinishRun(runID, report.Finished, failed > 0); err != nil {
		log.Printf("store: %v", err)
	}
	if err := writeReportJSON(fsys, cfg.GetResultsDir(), report); err != nil {
		log.Printf("write batch report: %v", err)
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return &casesFailedError{failed: failed, total: len(cases)}
	}
	return nil
}

func writeReportJSON(fsys fsutil.FileSystem, dir string, report *batch.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return fsys.WriteFile(filepath.Join(dir, "batch_"+report.RunID+".json"), data, 0o644)
}

func cmdGenerate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	writeGeo := fs.Bool("geo", false, "write geom_<id>.geo into each case directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sf.load()
	if err != nil {
		return err
	}
	cases, err := generateCases(cfg)
	if err != nil {
		return err
	}
	if err := printCases(stdout, cfg, cases); err != nil {
		return err
	}
	if !*writeGeo {
		return nil
	}

	fsys := fsutil.OSFileSystem{}
	renderer, err := geometry(cfg, fsys)
	if err != nil {
		return err
	}
	for _, c := range cases {
		dir, err := security.CaseDir(cfg.GetWorkDir(), c.ID())
		if err != nil {
			return err
		}
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, meshgen.GeoFilename(c.ID()))
		if err := renderer.WriteFile(fsys, path, c); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

// printCases lists requested and corrected values with the cell count,
// like the mesh generation report of the original study.
func printCases(w io.Writer, cfg *config.StudyConfig, cases []sweep.CaseDescriptor) error {
	primary, secondary := cfg.GetPrimaryName(), cfg.GetSecondaryName()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CASE\t%s\tCORRECTED\tDIFF\tCELLS\t%s\n", primary, secondary)
	for _, c := range cases {
		a, _ := c.Param(primary)
		corr, _ := c.CorrectedParam(primary)
		b, _ := c.Param(secondary)
		cells := "-"
		if sp, ok := c.Spacing(); ok {
			cells = fmt.Sprintf("%d", sp.Cells)
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%.6f\t%.2e\t%s\t%.4f\n", c.ID(), a, corr, corr-a, cells, b)
	}
	fmt.Fprintf(tw, "%d cases\n", len(cases))
	return tw.Flush()
}
