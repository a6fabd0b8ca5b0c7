package store

import (
	"github.com/banshee-data/paramstudy/internal/batch"
	"github.com/banshee-data/paramstudy/internal/monitoring"
	"github.com/banshee-data/paramstudy/internal/sweep"
	"github.com/banshee-data/paramstudy/internal/timeutil"
)

// Recorder is a batch.Observer that writes case progress to the store.
// Write failures are logged and do not stop the batch.
type Recorder struct {
	store *Store
	runID string
	clock timeutil.Clock
}

var _ batch.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder for runID. A nil clock uses wall time.
func NewRecorder(s *Store, runID string, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{store: s, runID: runID, clock: clock}
}

// CaseStarted implements batch.Observer.
func (r *Recorder) CaseStarted(c sweep.CaseDescriptor) {
	if err := r.store.MarkStarted(r.runID, c.ID(), r.clock.Now()); err != nil {
		monitoring.Logf("store: mark %s started: %v", c.ID(), err)
	}
}

// CaseFinished implements batch.Observer.
func (r *Recorder) CaseFinished(res batch.JobResult) {
	if err := r.store.RecordResult(r.runID, res, r.clock.Now()); err != nil {
		monitoring.Logf("store: record %s: %v", res.CaseID, err)
	}
}
