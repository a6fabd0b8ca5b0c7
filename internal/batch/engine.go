// Package batch runs study cases through the external tools on a bounded
// pool of workers.
//
// Cases are dispatched in submission order to at most Workers concurrent
// runners. Every case ends with exactly one JobResult: a case that fails,
// panics or is never dispatched is recorded as Failed, and the batch
// always reaches the end of its list.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/monitoring"
	"github.com/banshee-data/paramstudy/internal/studyerr"
	"github.com/banshee-data/paramstudy/internal/sweep"
	"github.com/banshee-data/paramstudy/internal/timeutil"
)

// Status is the final state of a case.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FailurePolicy decides what a failed case does to the rest of the batch.
// It is fixed when Run starts.
type FailurePolicy int

const (
	// ContinueAndRecord records the failure and keeps dispatching.
	ContinueAndRecord FailurePolicy = iota
	// StopOnFirstFailure stops dispatching new cases; cases already
	// running finish and are recorded.
	StopOnFirstFailure
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueAndRecord:
		return "continue"
	case StopOnFirstFailure:
		return "stop"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParsePolicy accepts "continue" or "stop".
func ParsePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueAndRecord, nil
	case "stop":
		return StopOnFirstFailure, nil
	}
	return 0, studyerr.Parameterf("on_failure", "unknown failure policy %q (want continue or stop)", s)
}

// CaseRunner runs one case to completion. A nil error means the tools
// exited 0; the Collection reports what outputs were gathered.
type CaseRunner interface {
	RunCase(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error)
}

// sequential is implemented by runners that share mutable state between
// cases and therefore cannot run with more than one worker.
type sequential interface {
	Sequential() bool
}

// Observer is notified as cases start and finish. Calls come from the
// dispatching goroutine, one at a time.
type Observer interface {
	CaseStarted(c sweep.CaseDescriptor)
	CaseFinished(r JobResult)
}

// JobResult is the outcome of one case.
type JobResult struct {
	CaseID     string              `json:"case_id"`
	Status     Status              `json:"status"`
	Elapsed    time.Duration       `json:"elapsed"`
	Diagnostic string              `json:"diagnostic,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	Dispatched bool                `json:"dispatched"`
	Collection *collect.Collection `json:"collection,omitempty"`
	Err        error               `json:"-"`
}

// Engine is the batch executor. Workers, Policy and Runner must be set;
// Clock, Observer and RunID are optional. A fresh RunID is generated
// per Run when none is given.
type Engine struct {
	Workers  int
	Policy   FailurePolicy
	Runner   CaseRunner
	Clock    timeutil.Clock
	Observer Observer
	RunID    string
}

// MaxWorkers is the largest allowed worker count.
func MaxWorkers() int { return runtime.NumCPU() }

func (e *Engine) validate(cases []sweep.CaseDescriptor) error {
	if e.Runner == nil {
		return studyerr.Parameterf("runner", "no case runner configured")
	}
	if e.Workers < 1 || e.Workers > MaxWorkers() {
		return studyerr.Parameterf("workers", "%d workers requested; must be between 1 and %d", e.Workers, MaxWorkers())
	}
	if s, ok := e.Runner.(sequential); ok && s.Sequential() && e.Workers > 1 {
		return studyerr.Parameterf("workers", "in-place mode edits the shared config and needs exactly 1 worker, got %d", e.Workers)
	}
	if e.Policy != ContinueAndRecord && e.Policy != StopOnFirstFailure {
		return studyerr.Parameterf("on_failure", "unknown failure policy %v", e.Policy)
	}
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		if seen[c.ID()] {
			return studyerr.Parameterf("case_id", "case %q submitted twice", c.ID())
		}
		seen[c.ID()] = true
	}
	return nil
}

type job struct {
	index int
	c     sweep.CaseDescriptor
}

type completion struct {
	index  int
	result JobResult
	// skipped is set when the worker saw ctx cancelled before starting.
	skipped bool
}

// Run executes cases and returns one result per case. Validation failures
// return an error before any runner is called. If ctx is cancelled, no
// new case is dispatched, running cases finish, and Run returns the
// report together with ctx.Err().
func (e *Engine) Run(ctx context.Context, cases []sweep.CaseDescriptor) (*Report, error) {
	if err := e.validate(cases); err != nil {
		return nil, err
	}
	clock := e.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	report := newReport(e.RunID, cases, e.Workers, e.Policy, clock.Now())

	jobs := make(chan job)
	done := make(chan completion)
	var wg sync.WaitGroup
	for w := 0; w < e.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx, clock, jobs, done)
		}()
	}

	next, inFlight, skipped := 0, 0, 0
	stopReason := ""
	ctxDone := ctx.Done()
	for {
		if stopReason == "" && ctx.Err() != nil {
			stopReason = fmt.Sprintf("not dispatched: %v", ctx.Err())
		}
		dispatching := stopReason == "" && next < len(cases)
		if !dispatching && inFlight == 0 {
			break
		}
		var send chan<- job
		var pending job
		if dispatching {
			send = jobs
			pending = job{index: next, c: cases[next]}
		}

		select {
		case send <- pending:
			if e.Observer != nil {
				e.Observer.CaseStarted(pending.c)
			}
			next++
			inFlight++
		case comp := <-done:
			inFlight--
			if comp.skipped {
				skipped++
				report.skip(comp.index, comp.result)
			} else {
				report.record(comp.index, comp.result)
			}
			if e.Observer != nil {
				e.Observer.CaseFinished(comp.result)
			}
			if !comp.skipped && comp.result.Status == StatusFailed && e.Policy == StopOnFirstFailure && stopReason == "" {
				stopReason = fmt.Sprintf("not dispatched: batch stopped after %s failed", comp.result.CaseID)
			}
		case <-ctxDone:
			ctxDone = nil
			if stopReason == "" {
				stopReason = fmt.Sprintf("not dispatched: %v", ctx.Err())
			}
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(cases); i++ {
		r := notDispatched(cases[i], stopReason)
		report.skip(i, r)
		if e.Observer != nil {
			e.Observer.CaseFinished(r)
		}
	}
	report.Finished = clock.Now()

	if err := ctx.Err(); err != nil && (next < len(cases) || skipped > 0) {
		return report, err
	}
	return report, nil
}

// work runs jobs until the channel closes. A job received after ctx is
// cancelled is handed back unrun.
func (e *Engine) work(ctx context.Context, clock timeutil.Clock, jobs <-chan job, done chan<- completion) {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			done <- completion{index: j.index, result: notDispatched(j.c, fmt.Sprintf("not dispatched: %v", err)), skipped: true}
			continue
		}
		done <- completion{index: j.index, result: e.runOne(ctx, clock, j.c)}
	}
}

func notDispatched(c sweep.CaseDescriptor, reason string) JobResult {
	return JobResult{CaseID: c.ID(), Status: StatusFailed, Diagnostic: reason, ExitCode: -1}
}

func (e *Engine) runOne(ctx context.Context, clock timeutil.Clock, c sweep.CaseDescriptor) (res JobResult) {
	logf := monitoring.CaseLogf(c.ID())
	start := clock.Now()
	res = JobResult{CaseID: c.ID(), Dispatched: true, ExitCode: -1}
	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("case runner panicked: %v", p)
			res.Diagnostic = res.Err.Error()
			logf("%v", res.Err)
		}
		res.Elapsed = clock.Since(start)
	}()

	col, err := e.Runner.RunCase(ctx, c)
	res.Collection = col
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Diagnostic = diagnostic(err)
		var toolErr *studyerr.ExternalToolError
		if errors.As(err, &toolErr) {
			res.ExitCode = toolErr.ExitCode
		}
		logf("failed: %v", err)
		return res
	}
	res.Status = StatusSuccess
	res.ExitCode = 0
	return res
}

// diagnostic is the error text followed by the captured tool output, if any.
func diagnostic(err error) string {
	var toolErr *studyerr.ExternalToolError
	if errors.As(err, &toolErr) && strings.TrimSpace(toolErr.Output) != "" {
		return err.Error() + "\n" + strings.TrimRight(toolErr.Output, "\n")
	}
	return err.Error()
}
