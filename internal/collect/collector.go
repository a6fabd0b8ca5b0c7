// Package collect renames the solver's fixed-name outputs to per-case
// names after a successful run.
package collect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/monitoring"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// Artifact is one output file the solver writes under a fixed name.
type Artifact struct {
	Name     string // e.g. "flow.vtu"
	Required bool   // missing required artifacts are reported as errors in the Collection
}

// DefaultArtifacts are the solver outputs of the flat plate study.
var DefaultArtifacts = []Artifact{
	{Name: "flow.vtu", Required: true},
	{Name: "surface_flow.vtu", Required: true},
	{Name: "history.csv", Required: true},
	{Name: "restart_flow.dat", Required: true},
}

// CaseName maps an artifact name to its per-case name:
// flow.vtu -> flow_d004_H03.vtu.
func CaseName(artifact, caseID string) string {
	ext := filepath.Ext(artifact)
	return strings.TrimSuffix(artifact, ext) + "_" + caseID + ext
}

// Outcome says what happened to one artifact.
type Outcome string

const (
	Moved   Outcome = "moved"   // fresh source renamed to the case name
	Kept    Outcome = "kept"    // destination from an earlier run left in place
	Missing Outcome = "missing" // neither present
)

// Entry is the result for one artifact.
type Entry struct {
	Artifact string  `json:"artifact"`
	Path     string  `json:"path"`
	Outcome  Outcome `json:"outcome"`
	Err      error   `json:"-"`
}

// Collection is the outcome of collecting one case. Missing artifacts do
// not turn a successful case into a failure.
type Collection struct {
	CaseID  string  `json:"case_id"`
	Entries []Entry `json:"entries"`
}

// Path returns where artifact ended up, if it exists.
func (c Collection) Path(artifact string) (string, bool) {
	for _, e := range c.Entries {
		if e.Artifact == artifact && e.Outcome != Missing {
			return e.Path, true
		}
	}
	return "", false
}

// Errors returns the ArtifactMissingErrors recorded for the case.
func (c Collection) Errors() []error {
	var errs []error
	for _, e := range c.Entries {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errs
}

// Complete reports whether every artifact is present.
func (c Collection) Complete() bool {
	for _, e := range c.Entries {
		if e.Outcome == Missing {
			return false
		}
	}
	return true
}

// Collector renames artifacts found in a case work directory.
type Collector struct {
	FS        fsutil.FileSystem
	Artifacts []Artifact
	// DestDir receives the renamed files. Empty means the work directory.
	DestDir string
}

// NewCollector returns a collector for the default artifacts on the OS
// file system.
func NewCollector() *Collector {
	return &Collector{FS: fsutil.OSFileSystem{}, Artifacts: DefaultArtifacts}
}

// Collect renames every artifact present in workDir. It is idempotent: a
// second call after a successful one finds no sources and keeps the
// destinations.
func (c *Collector) Collect(workDir, caseID string) Collection {
	logf := monitoring.CaseLogf(caseID)
	dest := c.DestDir
	if dest == "" {
		dest = workDir
	}
	col := Collection{CaseID: caseID}
	for _, a := range c.Artifacts {
		src := filepath.Join(workDir, a.Name)
		dst := filepath.Join(dest, CaseName(a.Name, caseID))
		e := Entry{Artifact: a.Name, Path: dst}

		switch {
		case c.FS.Exists(src):
			if err := c.replace(src, dst); err != nil {
				e.Outcome = Missing
				if c.FS.Exists(dst) {
					e.Outcome = Kept
				}
				e.Err = fmt.Errorf("collect %s: %w", a.Name, err)
				logf("%v", e.Err)
			} else {
				e.Outcome = Moved
			}
		case c.FS.Exists(dst):
			e.Outcome = Kept
		default:
			e.Outcome = Missing
			if a.Required {
				e.Err = &studyerr.ArtifactMissingError{CaseID: caseID, Artifact: a.Name, Path: src}
				logf("%v", e.Err)
			}
		}
		col.Entries = append(col.Entries, e)
	}
	return col
}

func (c *Collector) replace(src, dst string) error {
	if err := c.FS.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	// Rename replaces dst, so a failed move leaves the earlier copy in place.
	return c.FS.Rename(src, dst)
}
