package procexec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// MaxDiagnosticBytes bounds how much process output is kept for a failed
// job. Solvers print a line per iteration; the tail holds the error.
const MaxDiagnosticBytes = 64 * 1024

// Logger is the debug sink for command tracing.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Runner executes external tools and classifies their failures.
type Runner struct {
	Builder CommandBuilder
	Logger  Logger
}

// NewRunner returns a Runner backed by real processes.
func NewRunner() *Runner {
	return &Runner{Builder: NewRealCommandBuilder(), Logger: nopLogger{}}
}

// exitCoder is satisfied by *exec.ExitError and MockExitError.
type exitCoder interface {
	ExitCode() int
}

// Run executes path with args in dir and returns the combined output.
// A non-zero exit or a launch failure is returned as an
// *studyerr.ExternalToolError carrying the tail of the output.
func (r *Runner) Run(dir, path string, args ...string) ([]byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	logger.Debugf("exec in %s: %s %s", dir, path, strings.Join(args, " "))

	cmd := r.Builder.BuildCommand(path, args...)
	if dir != "" {
		cmd.SetDir(dir)
	}
	out, err := cmd.Run()
	if err == nil {
		return out, nil
	}

	toolErr := &studyerr.ExternalToolError{
		Tool:     filepath.Base(path),
		ExitCode: -1,
		Output:   Tail(out, MaxDiagnosticBytes),
		Err:      err,
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		toolErr.Started = true
		toolErr.ExitCode = ec.ExitCode()
	}
	logger.Debugf("exec failed: %v", toolErr)
	return out, toolErr
}

// Tail returns at most max bytes from the end of out, marking the cut.
func Tail(out []byte, max int) string {
	if len(out) <= max {
		return string(out)
	}
	cut := out[len(out)-max:]
	if i := strings.IndexByte(string(cut), '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return fmt.Sprintf("[... %d bytes omitted ...]\n%s", len(out)-len(cut), cut)
}
