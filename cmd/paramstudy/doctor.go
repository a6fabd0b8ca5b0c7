package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/banshee-data/paramstudy/internal/procexec"
)

// toolCandidates are install locations checked when a tool is not on PATH.
func toolCandidates(name string) []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "SU2", "bin"), filepath.Join(home, ".local", "bin"))
	}
	if su2 := os.Getenv("SU2_RUN"); su2 != "" {
		dirs = append([]string{su2}, dirs...)
	}
	dirs = append(dirs, "/usr/local/bin", "/opt/su2/bin", "/opt/gmsh/bin", "/opt/homebrew/bin")
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = filepath.Join(d, name)
	}
	return out
}

func cmdDoctor(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	sf := addStudyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := sf.load()
	if err != nil {
		return err
	}

	tools := []struct {
		role, name string
		required   bool
	}{
		{"solver", cfg.GetSolver(), true},
		{"mesher", cfg.GetMesher(), cfg.GetMesher() != ""},
	}
	builder := procexec.NewRealCommandBuilder()
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tNAME\tPATH\tVERSION")
	var missing []string
	for _, t := range tools {
		if t.name == "" {
			fmt.Fprintf(tw, "%s\t-\t(disabled)\t\n", t.role)
			continue
		}
		exe, err := procexec.Discover(builder, t.name, toolCandidates(filepath.Base(t.name))...)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\tnot found\t\n", t.role, t.name)
			if t.required {
				missing = append(missing, t.name)
			}
			continue
		}
		v := exe.Version
		if v == "" {
			v = "(no --version output)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.role, t.name, exe.Path, v)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools: %v", missing)
	}
	return nil
}
