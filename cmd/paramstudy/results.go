package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/paramstudy/internal/batch"
	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/config"
	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/history"
	"github.com/banshee-data/paramstudy/internal/report"
	"github.com/banshee-data/paramstudy/internal/security"
	"github.com/banshee-data/paramstudy/internal/store"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

// storedRun is a run loaded back from the store.
type storedRun struct {
	record  store.RunRecord
	cases   []sweep.CaseDescriptor
	results map[string]batch.JobResult
}

func loadRun(st *store.Store, runID string) (*storedRun, error) {
	var (
		rec store.RunRecord
		err error
	)
	if runID == "" {
		rec, err = st.LatestRun()
	} else {
		rec, err = st.GetRun(runID)
	}
	if errors.Is(err, store.ErrNotFound) {
		if runID == "" {
			return nil, errors.New("no runs stored yet; start one with paramstudy run")
		}
		return nil, fmt.Errorf("no stored run %q", runID)
	}
	if err != nil {
		return nil, err
	}
	cases, err := st.Cases(rec.RunID)
	if err != nil {
		return nil, err
	}
	results, err := st.Results(rec.RunID)
	if err != nil {
		return nil, err
	}
	run := &storedRun{record: rec, cases: cases, results: make(map[string]batch.JobResult, len(results))}
	for _, r := range results {
		run.results[r.CaseID] = r
	}
	return run, nil
}

// artifactPath is where a collected artifact of a case lives: the path
// recorded at collection time, or the default case directory location.
func (r *storedRun) artifactPath(cfg *config.StudyConfig, caseID, artifact string) (string, error) {
	if res, ok := r.results[caseID]; ok && res.Collection != nil {
		if p, ok := res.Collection.Path(artifact); ok {
			return p, nil
		}
	}
	dir, err := caseDir(cfg, caseID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, collect.CaseName(artifact, caseID)), nil
}

func caseDir(cfg *config.StudyConfig, caseID string) (string, error) {
	if cfg.GetInPlace() {
		return filepath.Dir(cfg.GetTemplate()), nil
	}
	return security.CaseDir(cfg.GetWorkDir(), caseID)
}

func cmdCollect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	runID := fs.String("run", "", "run id (default: latest)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.GetDatabase())
	if err != nil {
		return err
	}
	defer st.Close()
	run, err := loadRun(st, *runID)
	if err != nil {
		return err
	}

	collector := collect.NewCollector()
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tMOVED\tKEPT\tMISSING")
	incomplete := 0
	for _, c := range run.cases {
		dir, err := caseDir(cfg, c.ID())
		if err != nil {
			return err
		}
		col := collector.Collect(dir, c.ID())
		counts := map[collect.Outcome]int{}
		for _, e := range col.Entries {
			counts[e.Outcome]++
		}
		if !col.Complete() {
			incomplete++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.ID(), counts[collect.Moved], counts[collect.Kept], counts[collect.Missing])
	}
	fmt.Fprintf(tw, "run %s: %d cases, %d incomplete\n", run.record.RunID, len(run.cases), incomplete)
	return tw.Flush()
}

func cmdSummary(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	runID := fs.String("run", "", "run id (default: latest)")
	fromDir := fs.String("from-dir", "", "summarise history_*.csv files in this directory instead of a stored run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}

	fsys := fsutil.OSFileSystem{}
	summary := &report.Summary{PrimaryName: cfg.GetPrimaryName(), SecondaryName: cfg.GetSecondaryName()}
	var logs []report.CaseLog

	if *fromDir != "" {
		logs, err = historyLogsFromDir(fsys, *fromDir)
		if err != nil {
			return err
		}
		ids := cfg.Generator().IDs
		for _, cl := range logs {
			a, b, err := ids.Parse(cl.CaseID)
			summary.Add(cl.CaseID, a, b, err == nil, cl.Log)
		}
	} else {
		st, err := store.Open(cfg.GetDatabase())
		if err != nil {
			return err
		}
		defer st.Close()
		run, err := loadRun(st, *runID)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, c := range run.cases {
			path, err := run.artifactPath(cfg, c.ID(), "history.csv")
			if err != nil {
				return err
			}
			hl, err := history.Load(fsys, path)
			if err != nil {
				log.Printf("skipping %s: %v", c.ID(), err)
				continue
			}
			a, okA := c.Param(cfg.GetPrimaryName())
			b, okB := c.Param(cfg.GetSecondaryName())
			summary.Add(c.ID(), a, b, okA && okB, hl)
			logs = append(logs, report.CaseLog{CaseID: c.ID(), Log: hl})
			row := summary.Rows[len(summary.Rows)-1]
			if err := st.SaveSummary(run.record.RunID, c.ID(), row.Final, now); err != nil {
				log.Printf("store: %v", err)
			}
		}
	}
	if len(summary.Rows) == 0 {
		return errors.New("no convergence histories found")
	}

	if err := summary.WriteTable(stdout); err != nil {
		return err
	}
	dir := cfg.GetResultsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "summary_results.csv"), summary.WriteCSV); err != nil {
		return err
	}
	err = writeFile(filepath.Join(dir, "convergence.html"), func(w io.Writer) error {
		return report.WriteConvergenceHTML(w, logs)
	})
	if err != nil {
		log.Printf("convergence chart: %v", err)
	}
	return nil
}

// historyLogsFromDir loads every history_<id>.csv in dir, sorted by name.
func historyLogsFromDir(fsys fsutil.FileSystem, dir string) ([]report.CaseLog, error) {
	paths, err := fsys.Glob(filepath.Join(dir, "history_*.csv"))
	if err != nil {
		return nil, err
	}
	var logs []report.CaseLog
	for _, p := range paths {
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), "history_"), ".csv")
		hl, err := history.Load(fsys, p)
		if err != nil {
			log.Printf("skipping %s: %v", p, err)
			continue
		}
		logs = append(logs, report.CaseLog{CaseID: id, Log: hl})
	}
	return logs, nil
}

// writeFile creates path and streams into it with fn.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("wrote %s", path)
	return nil
}

func cmdRuns(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	database := fs.String("db", "paramstudy.db", "run store")
	limit := fs.Int("limit", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := store.Open(*database)
	if err != nil {
		return err
	}
	defer st.Close()
	runs, err := st.ListRuns(*limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tWORKERS\tPOLICY\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", r.RunID, r.Status, r.Workers, r.Policy,
			r.StartedAt.Local().Format(time.DateTime), duration)
	}
	return tw.Flush()
}
