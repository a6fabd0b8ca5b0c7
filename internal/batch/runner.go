package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/meshgen"
	"github.com/banshee-data/paramstudy/internal/monitoring"
	"github.com/banshee-data/paramstudy/internal/procexec"
	"github.com/banshee-data/paramstudy/internal/security"
	"github.com/banshee-data/paramstudy/internal/solvercfg"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

// ProcessRunner runs each case in its own directory <WorkDir>/<id> with
// its own copy of the solver config. The shared template is only read,
// so any number of ProcessRunner cases may run at once.
type ProcessRunner struct {
	FS        fsutil.FileSystem
	Exec      *procexec.Runner
	Collector *collect.Collector

	WorkDir  string // parent of the case directories
	Template string // solver config template
	Solver   string // solver executable

	// Mesher, when set, renders Geometry into the case directory and
	// meshes it before the solver runs.
	Mesher   string
	Geometry *meshgen.Renderer

	// MeshDir holds pre-built meshes (mesh_<id>.su2) copied into the case
	// directory when no Mesher is configured.
	MeshDir string

	// KeepLogs writes the combined tool output to <tool>_<id>.log in the
	// case directory.
	KeepLogs bool
}

// CaseDir is where a case runs.
func (p *ProcessRunner) CaseDir(caseID string) (string, error) {
	return security.CaseDir(p.WorkDir, caseID)
}

// RunCase implements CaseRunner.
func (p *ProcessRunner) RunCase(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
	id := c.ID()
	dir, err := p.CaseDir(id)
	if err != nil {
		return nil, err
	}
	if err := p.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create case directory: %w", err)
	}

	if err := p.prepareMesh(dir, c); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := filepath.Join(dir, solvercfg.CaseConfigName(p.Template, id))
	err = solvercfg.WithCaseConfig(p.FS, p.Template, cfg, c.ConfigOverrides(), func(path string) error {
		out, err := p.Exec.Run(dir, p.Solver, filepath.Base(path))
		p.keepLog(dir, p.Solver, id, out)
		return err
	})
	if err != nil {
		return nil, err
	}

	col := p.Collector.Collect(dir, id)
	return &col, nil
}

func (p *ProcessRunner) prepareMesh(dir string, c sweep.CaseDescriptor) error {
	id := c.ID()
	mesh := sweep.MeshFilename(id)
	switch {
	case p.Mesher != "":
		if p.Geometry == nil {
			return fmt.Errorf("mesher configured without a geometry template")
		}
		geo := meshgen.GeoFilename(id)
		if err := p.Geometry.WriteFile(p.FS, filepath.Join(dir, geo), c); err != nil {
			return err
		}
		out, err := p.Exec.Run(dir, p.Mesher, meshgen.MesherArgs(geo, mesh)...)
		p.keepLog(dir, p.Mesher, id, out)
		if err != nil {
			return err
		}
		if !p.FS.Exists(filepath.Join(dir, mesh)) {
			return fmt.Errorf("%s exited 0 but did not write %s", filepath.Base(p.Mesher), mesh)
		}
	case p.MeshDir != "":
		dst := filepath.Join(dir, mesh)
		if p.FS.Exists(dst) {
			return nil
		}
		if err := fsutil.CopyFile(p.FS, filepath.Join(p.MeshDir, mesh), dst); err != nil {
			return fmt.Errorf("stage mesh: %w", err)
		}
	}
	return nil
}

func (p *ProcessRunner) keepLog(dir, tool, id string, out []byte) {
	if !p.KeepLogs || len(out) == 0 {
		return
	}
	name := fmt.Sprintf("%s_%s.log", security.SanitizeFilename(filepath.Base(tool)), id)
	if err := p.FS.WriteFile(filepath.Join(dir, name), out, 0o644); err != nil {
		monitoring.CaseLogf(id)("write %s: %v", name, err)
	}
}

// InPlaceRunner reproduces the legacy workflow: every case rewrites the
// shared config next to its mesh, runs the solver in that directory and
// renames the outputs there. The config is backed up before and restored
// after each case. It must run with a single worker.
type InPlaceRunner struct {
	FS        fsutil.FileSystem
	Exec      *procexec.Runner
	Collector *collect.Collector

	Template string // shared solver config, edited in place
	Solver   string
}

// Sequential reports that the runner cannot share the config between workers.
func (r *InPlaceRunner) Sequential() bool { return true }

// RunCase implements CaseRunner.
func (r *InPlaceRunner) RunCase(ctx context.Context, c sweep.CaseDescriptor) (col *collect.Collection, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Dir(r.Template)
	restore, err := solvercfg.Backup(r.FS, r.Template)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			monitoring.CaseLogf(c.ID())("%v", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()

	if err := solvercfg.RewriteInPlace(r.FS, r.Template, c.ConfigOverrides()); err != nil {
		return nil, err
	}
	if _, err := r.Exec.Run(dir, r.Solver, filepath.Base(r.Template)); err != nil {
		return nil, err
	}
	collected := r.Collector.Collect(dir, c.ID())
	return &collected, nil
}
