package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/monitoring"
	"github.com/banshee-data/paramstudy/internal/studyerr"
	"github.com/banshee-data/paramstudy/internal/sweep"
	"github.com/banshee-data/paramstudy/internal/timeutil"
)

type runnerFunc func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error)

func (f runnerFunc) RunCase(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
	return f(ctx, c)
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func makeCases(t *testing.T, n int) []sweep.CaseDescriptor {
	t.Helper()
	primary := make([]float64, n)
	for i := range primary {
		primary[i] = -0.02 * float64(i+1)
	}
	g := sweep.NewGenerator()
	g.Discretize = false
	cases, err := g.Generate(sweep.SingleAxis{FixedSecondary: 0.03, Primary: primary})
	require.NoError(t, err)
	return cases
}

func succeed(context.Context, sweep.CaseDescriptor) (*collect.Collection, error) {
	return &collect.Collection{}, nil
}

func testWorkers(want int) int {
	if n := runtime.NumCPU(); n < want {
		return n
	}
	return want
}

func TestEngine_BoundedConcurrency(t *testing.T) {
	muteLogs(t)
	workers := testWorkers(3)
	cases := makeCases(t, 12)

	var active, peak int32
	e := &Engine{Workers: workers, Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &collect.Collection{CaseID: c.ID()}, nil
	})}

	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)

	assert.LessOrEqual(t, int(peak), workers)
	assert.GreaterOrEqual(t, int(peak), 1)
	require.Len(t, report.Results, len(cases))
	assert.Len(t, report.Order, len(cases))
	for i, res := range report.Results {
		assert.Equal(t, cases[i].ID(), res.CaseID, "submission order preserved")
		assert.Equal(t, StatusSuccess, res.Status)
		assert.True(t, res.Dispatched)
		assert.Equal(t, 0, res.ExitCode)
	}
	ok, failed := report.Counts()
	assert.Equal(t, 12, ok)
	assert.Equal(t, 0, failed)
	assert.NotEmpty(t, report.RunID)
}

func TestEngine_KeepsGivenRunID(t *testing.T) {
	muteLogs(t)

	e := &Engine{Workers: 1, Runner: runnerFunc(succeed), RunID: "run-42"}
	report, err := e.Run(context.Background(), makeCases(t, 1))
	require.NoError(t, err)
	assert.Equal(t, "run-42", report.RunID)
}

func TestEngine_RejectsInvalidSetup(t *testing.T) {
	t.Parallel()

	cases := makeCases(t, 2)
	var calls int32
	counting := runnerFunc(func(context.Context, sweep.CaseDescriptor) (*collect.Collection, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})

	tests := []struct {
		name   string
		engine *Engine
		cases  []sweep.CaseDescriptor
	}{
		{"zero workers", &Engine{Workers: 0, Runner: counting}, cases},
		{"too many workers", &Engine{Workers: runtime.NumCPU() + 1, Runner: counting}, cases},
		{"no runner", &Engine{Workers: 1}, cases},
		{"bad policy", &Engine{Workers: 1, Runner: counting, Policy: FailurePolicy(7)}, cases},
		{"duplicate ids", &Engine{Workers: 1, Runner: counting}, []sweep.CaseDescriptor{cases[0], cases[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := tt.engine.Run(context.Background(), tt.cases)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, studyerr.ErrParameter)
		})
	}
	assert.Zero(t, atomic.LoadInt32(&calls), "no case runs when setup is invalid")
}

func TestEngine_InPlaceRunnerNeedsOneWorker(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("needs 2 CPUs to request 2 workers")
	}
	e := &Engine{Workers: 2, Runner: &InPlaceRunner{}}
	_, err := e.Run(context.Background(), makeCases(t, 2))
	assert.ErrorIs(t, err, studyerr.ErrParameter)
}

func TestEngine_ContinueAndRecord(t *testing.T) {
	muteLogs(t)
	cases := makeCases(t, 6)
	failing := map[string]bool{cases[1].ID(): true, cases[4].ID(): true}

	e := &Engine{Workers: testWorkers(2), Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		if failing[c.ID()] {
			return nil, &studyerr.ExternalToolError{Tool: "SU2_CFD", Started: true, ExitCode: 3, Output: "residual diverged\n"}
		}
		return &collect.Collection{CaseID: c.ID()}, nil
	})}

	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	require.Len(t, report.Results, 6)

	for _, c := range cases {
		res, ok := report.Result(c.ID())
		require.True(t, ok)
		assert.True(t, res.Dispatched)
		if failing[c.ID()] {
			assert.Equal(t, StatusFailed, res.Status)
			assert.Equal(t, 3, res.ExitCode)
			assert.Equal(t, "SU2_CFD exited with code 3\nresidual diverged", res.Diagnostic)
			assert.ErrorIs(t, res.Err, studyerr.ErrExternalTool)
		} else {
			assert.Equal(t, StatusSuccess, res.Status)
		}
	}
	ok, failed := report.Counts()
	assert.Equal(t, 4, ok)
	assert.Equal(t, 2, failed)
	assert.Len(t, report.Succeeded(), 4)
}

func TestEngine_StopOnFirstFailure(t *testing.T) {
	muteLogs(t)
	cases := makeCases(t, 5)
	var calls int32

	e := &Engine{Workers: 1, Policy: StopOnFirstFailure, Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		atomic.AddInt32(&calls, 1)
		if c.ID() == cases[1].ID() {
			return nil, errors.New("boom")
		}
		return &collect.Collection{}, nil
	})}

	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	require.Len(t, report.Results, 5, "every case has a result")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	assert.Equal(t, StatusSuccess, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.True(t, report.Results[1].Dispatched)
	for _, res := range report.Results[2:] {
		assert.Equal(t, StatusFailed, res.Status)
		assert.False(t, res.Dispatched)
		assert.Contains(t, res.Diagnostic, "stopped after "+cases[1].ID())
	}
	assert.Equal(t, []string{cases[0].ID(), cases[1].ID()}, report.Order)
}

type finishFunc func(r JobResult)

func (f finishFunc) CaseStarted(sweep.CaseDescriptor) {}
func (f finishFunc) CaseFinished(r JobResult)         { f(r) }

func TestEngine_StopPolicyLetsRunningCasesFinish(t *testing.T) {
	muteLogs(t)
	if runtime.NumCPU() < 2 {
		t.Skip("needs 2 workers")
	}
	cases := makeCases(t, 4)
	release := make(chan struct{})

	// Case 0 is held until the failure of case 1 has been recorded.
	e := &Engine{
		Workers: 2,
		Policy:  StopOnFirstFailure,
		Observer: finishFunc(func(r JobResult) {
			if r.CaseID == cases[1].ID() {
				close(release)
			}
		}),
		Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
			switch c.ID() {
			case cases[0].ID():
				<-release
				return &collect.Collection{}, nil
			case cases[1].ID():
				return nil, errors.New("fails while case 0 is still running")
			}
			return &collect.Collection{}, nil
		}),
	}

	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.False(t, report.Results[2].Dispatched)
	assert.False(t, report.Results[3].Dispatched)
	assert.Equal(t, []string{cases[1].ID(), cases[0].ID()}, report.Order)
}

func TestEngine_PanicBecomesFailedResult(t *testing.T) {
	muteLogs(t)
	cases := makeCases(t, 3)
	var cleaned int32

	e := &Engine{Workers: 1, Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		defer atomic.AddInt32(&cleaned, 1)
		if c.ID() == cases[1].ID() {
			panic("index out of range")
		}
		return &collect.Collection{}, nil
	})}

	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&cleaned), "deferred cleanup ran for every case")
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Diagnostic, "panicked: index out of range")
	assert.Equal(t, StatusSuccess, report.Results[2].Status)
}

func TestEngine_ElapsedFromClock(t *testing.T) {
	clock := timeutil.NewSteppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 2*time.Second)
	e := &Engine{Workers: 1, Runner: runnerFunc(succeed), Clock: clock}

	report, err := e.Run(context.Background(), makeCases(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, report.Results[0].Elapsed)
	assert.True(t, report.Finished.After(report.Started))
}

func TestEngine_CancelledContext(t *testing.T) {
	muteLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	e := &Engine{Workers: 1, Runner: runnerFunc(func(context.Context, sweep.CaseDescriptor) (*collect.Collection, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})}

	report, err := e.Run(ctx, makeCases(t, 3))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Len(t, report.Results, 3)
	assert.Zero(t, atomic.LoadInt32(&calls))
	for _, res := range report.Results {
		assert.False(t, res.Dispatched)
		assert.Contains(t, res.Diagnostic, "context canceled")
	}
}

func TestEngine_WorkerSkipsJobsAfterCancel(t *testing.T) {
	muteLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int32
	e := &Engine{Workers: 1, Runner: runnerFunc(func(context.Context, sweep.CaseDescriptor) (*collect.Collection, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})}
	cases := makeCases(t, 1)

	jobs := make(chan job, 1)
	done := make(chan completion, 1)
	jobs <- job{index: 0, c: cases[0]}
	close(jobs)
	e.work(ctx, timeutil.RealClock{}, jobs, done)

	comp := <-done
	assert.True(t, comp.skipped)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, cases[0].ID(), comp.result.CaseID)
	assert.Equal(t, StatusFailed, comp.result.Status)
	assert.False(t, comp.result.Dispatched)
	assert.Contains(t, comp.result.Diagnostic, "context canceled")
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []JobResult
}

func (o *recordingObserver) CaseStarted(c sweep.CaseDescriptor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, c.ID())
}

func (o *recordingObserver) CaseFinished(r JobResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

func TestEngine_Observer(t *testing.T) {
	muteLogs(t)
	cases := makeCases(t, 4)
	obs := &recordingObserver{}
	e := &Engine{Workers: 1, Policy: StopOnFirstFailure, Observer: obs, Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		if c.ID() == cases[2].ID() {
			return nil, errors.New("fail")
		}
		return &collect.Collection{}, nil
	})}

	_, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, []string{cases[0].ID(), cases[1].ID(), cases[2].ID()}, obs.started)
	require.Len(t, obs.finished, 4)
	assert.False(t, obs.finished[3].Dispatched)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]FailurePolicy{"": ContinueAndRecord, "continue": ContinueAndRecord, "STOP": StopOnFirstFailure} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePolicy("ask")
	assert.ErrorIs(t, err, studyerr.ErrParameter)
	assert.Equal(t, "stop", StopOnFirstFailure.String())
}

func TestReport_WriteTable(t *testing.T) {
	muteLogs(t)
	cases := makeCases(t, 2)
	e := &Engine{Workers: 1, Runner: runnerFunc(func(ctx context.Context, c sweep.CaseDescriptor) (*collect.Collection, error) {
		if c.ID() == cases[1].ID() {
			return nil, fmt.Errorf("mesher exited 0 but did not write mesh\nsecond line")
		}
		return &collect.Collection{Entries: []collect.Entry{{Artifact: "flow.vtu", Outcome: collect.Missing}}}, nil
	})}
	report, err := e.Run(context.Background(), cases)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteTable(&buf))
	out := buf.String()
	assert.Contains(t, out, "CASE")
	assert.Contains(t, out, "1 artifact(s) missing")
	assert.Contains(t, out, "mesher exited 0 but did not write mesh")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "succeeded 1")
	assert.True(t, strings.Contains(out, cases[0].ID()) && strings.Contains(out, cases[1].ID()))
}
