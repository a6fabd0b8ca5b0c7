package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/paramstudy/internal/compare"
	"github.com/banshee-data/paramstudy/internal/config"
	"github.com/banshee-data/paramstudy/internal/dataset"
	"github.com/banshee-data/paramstudy/internal/fsutil"
	"github.com/banshee-data/paramstudy/internal/report"
	"github.com/banshee-data/paramstudy/internal/sample"
	"github.com/banshee-data/paramstudy/internal/security"
	"github.com/banshee-data/paramstudy/internal/store"
)

type datasetInput struct {
	label string
	path  string
}

func cmdCompare(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	runID := fs.String("run", "", "run id (default: latest)")
	files := fs.String("files", "", "comma-separated datasets to compare instead of a stored run")
	artifact := fs.String("artifact", "flow.vtu", "collected dataset to compare")
	field := fs.String("field", "", "point field to compare (default Pressure)")
	points := fs.Int("points", 0, "sample points on the line (default 20)")
	noChart := fs.Bool("no-chart", false, "skip the PNG chart")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}
	if *field != "" {
		cfg.Field = field
	}
	if *points > 0 {
		cfg.LinePoints = points
	}

	var inputs []datasetInput
	if *files != "" {
		for _, p := range strings.Split(*files, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			inputs = append(inputs, datasetInput{label: labelFor(p), path: p})
		}
	} else {
		st, err := store.Open(cfg.GetDatabase())
		if err != nil {
			return err
		}
		run, err := loadRun(st, *runID)
		st.Close()
		if err != nil {
			return err
		}
		for _, c := range run.cases {
			path, err := run.artifactPath(cfg, c.ID(), *artifact)
			if err != nil {
				return err
			}
			inputs = append(inputs, datasetInput{label: c.ID(), path: path})
		}
	}
	if len(inputs) < 2 {
		return usagef("comparison needs at least 2 datasets, got %d", len(inputs))
	}

	labels, series, err := sampleAll(ctx, cfg, fsutil.OSFileSystem{}, inputs)
	if err != nil {
		return err
	}
	r, err := compare.Compare(labels, series, cfg.GetField())
	if err != nil {
		return err
	}

	if err := printPairs(stdout, r); err != nil {
		return err
	}
	dir := cfg.GetResultsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := security.SanitizeFilename(cfg.GetField())
	if err := writeFile(filepath.Join(dir, base+"_comparison_line.csv"), r.WriteCSV); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, base+"_comparison_stats.csv"), r.WriteStatsCSV); err != nil {
		return err
	}
	if !*noChart {
		err := writeFile(filepath.Join(dir, base+"_comparison.png"), func(w io.Writer) error {
			return report.WriteComparisonPNG(w, r)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sampleAll loads the datasets concurrently and samples the configured
// line in each. A dataset that fails to load is dropped with a warning;
// the remaining cases are still compared.
func sampleAll(ctx context.Context, cfg *config.StudyConfig, fsys fsutil.FileSystem, inputs []datasetInput) ([]string, [][]sample.Result, error) {
	loaded := make([][]sample.Result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.GetWorkers())
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := dataset.Load(fsys, in.path)
			if err != nil {
				log.Printf("dropping %s: %v", in.label, err)
				return nil
			}
			s, err := sample.New(ds, cfg.GetSampleDims())
			if err != nil {
				log.Printf("dropping %s: %v", in.label, err)
				return nil
			}
			res, err := s.Line(cfg.GetLineStart(), cfg.GetLineEnd(), cfg.GetLinePoints())
			if err != nil {
				return fmt.Errorf("sample %s: %w", in.label, err)
			}
			loaded[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var labels []string
	var series [][]sample.Result
	for i, res := range loaded {
		if res == nil {
			continue
		}
		labels = append(labels, inputs[i].label)
		series = append(series, res)
	}
	if len(series) < 2 {
		return nil, nil, errors.New("fewer than 2 datasets could be loaded")
	}
	return labels, series, nil
}

func printPairs(w io.Writer, r *compare.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "FROM\tTO\tMEAN\tSTDDEV\tMIN\tMAX\tMAX_DIST\n")
	for _, p := range r.Pairs {
		fmt.Fprintf(tw, "%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\t%.3g\n", p.From, p.To, p.Mean, p.StdDev, p.Min, p.Max, p.MaxDistance)
	}
	return tw.Flush()
}

// labelFor names a dataset after its file: flow_d004_H03.vtu -> d004_H03.
func labelFor(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.IndexByte(base, '_'); i >= 0 && i+1 < len(base) {
		return base[i+1:]
	}
	return base
}

func cmdExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	in := fs.String("in", "", "dataset to read (.vtu or .csv)")
	out := fs.String("out", "", "CSV to write (default: input name with .csv, - for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return usagef("-in is required")
	}
	ds, err := dataset.Load(fsutil.OSFileSystem{}, *in)
	if err != nil {
		return err
	}
	target := *out
	if target == "" {
		target = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".csv"
	}
	if target == *in {
		return usagef("refusing to overwrite %s", *in)
	}
	if target == "-" {
		return ds.WriteCSV(stdout)
	}
	if err := writeFile(target, ds.WriteCSV); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d points, fields: %s\n", ds.Len(), strings.Join(ds.FieldNames(), ", "))
	return nil
}
