// Package studyerr defines the error kinds shared by the study pipeline.
//
// Each kind is a concrete type carrying context and an optional cause. The
// package-level sentinels match any error of the corresponding kind through
// errors.Is, so callers can branch without type assertions:
//
//	if errors.Is(err, studyerr.ErrParameter) { ... }
package studyerr

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching.
var (
	ErrParameter       = errors.New("invalid parameter")
	ErrExternalTool    = errors.New("external tool failure")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrDataFormat      = errors.New("data format error")
)

// ParameterError reports an invalid sweep specification or a geometric solve
// that cannot converge. It is raised before any external process starts.
type ParameterError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ParameterError) Error() string {
	msg := "invalid parameter"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParameterError) Unwrap() error { return e.Err }

func (e *ParameterError) Is(target error) bool { return target == ErrParameter }

// Parameterf builds a ParameterError for field with a formatted reason.
func Parameterf(field, format string, args ...interface{}) error {
	return &ParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExternalToolError reports a missing, unlaunchable or failing executable.
// ExitCode is -1 when the process never started or was killed by a signal.
type ExternalToolError struct {
	Tool     string
	Started  bool
	ExitCode int
	Output   string
	Err      error
}

func (e *ExternalToolError) Error() string {
	switch {
	case !e.Started:
		return fmt.Sprintf("%s could not be started: %v", e.Tool, e.Err)
	case e.ExitCode < 0:
		return fmt.Sprintf("%s terminated abnormally: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

func (e *ExternalToolError) Is(target error) bool { return target == ErrExternalTool }

// ArtifactMissingError reports an expected output file that is absent after
// a successful job. It never changes the job status.
type ArtifactMissingError struct {
	CaseID   string
	Artifact string
	Path     string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("case %s: artifact %s not found at %s", e.CaseID, e.Artifact, e.Path)
}

func (e *ArtifactMissingError) Is(target error) bool { return target == ErrArtifactMissing }

// DataFormatError reports a convergence log or dataset that cannot be parsed.
type DataFormatError struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *DataFormatError) Error() string {
	msg := "malformed data"
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataFormatError) Unwrap() error { return e.Err }

func (e *DataFormatError) Is(target error) bool { return target == ErrDataFormat }

// DataFormatf builds a DataFormatError for path with a formatted reason.
func DataFormatf(path, format string, args ...interface{}) error {
	return &DataFormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
