// Command paramstudy generates, runs and post-processes parametric CFD
// studies: one mesher and solver run per parameter combination, then
// summaries and field comparisons across the cases.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/paramstudy/internal/version"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitCasesFailed = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := dispatch(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// dispatch runs one subcommand and maps its error to an exit code.
func dispatch(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return exitUsage
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "run":
		err = cmdRun(ctx, rest, stdout)
	case "generate":
		err = cmdGenerate(rest, stdout)
	case "collect":
		err = cmdCollect(rest, stdout)
	case "summary":
		err = cmdSummary(rest, stdout)
	case "compare":
		err = cmdCompare(ctx, rest, stdout)
	case "export":
		err = cmdExport(rest, stdout)
	case "runs":
		err = cmdRuns(rest, stdout)
	case "doctor":
		err = cmdDoctor(rest, stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		return exitUsage
	}

	var failed *casesFailedError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &failed):
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		return exitCasesFailed
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		return exitUsage
	}
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
	return exitError
}

var errUsage = errors.New("usage error")

func usagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

type casesFailedError struct {
	failed, total int
}

func (e *casesFailedError) Error() string {
	return fmt.Sprintf("%d of %d cases failed", e.failed, e.total)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `paramstudy - parametric CFD study runner

Usage: paramstudy <command> [options]

Commands:
  generate   Expand the sweep and print the cases (optionally write .geo files)
  run        Mesh and solve every case with a bounded worker pool
  collect    Rename solver outputs of a stored run to per-case names
  summary    Tabulate final drag, lift, iterations and residuals per case
  compare    Sample a field along a line in every case and difference them
  export     Convert a .vtu dataset to CSV
  runs       List stored runs
  doctor     Locate the solver and mesher and print their versions
  version    Show version
  help       Show this help message

Common Flags:
  -config <file>     Study file (.json, .yaml or .yml)
  -preset <name>     Built-in sweep: vary-d, vary-h or matrix
  -primary <list>    Primary values, "a,b,c" or "start:stop:step"
  -secondary <list>  Secondary values (cross product with primary)
  -workers <n>       Concurrent cases (default 1)
  -on-failure <p>    continue (default) or stop
  -db <file>         Run store (default paramstudy.db)

Examples:
  paramstudy generate -preset vary-d
  paramstudy run -config study.yaml -workers 4
  paramstudy summary -config study.yaml
  paramstudy compare -config study.yaml -field Pressure
`)
}
