package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/paramstudy/internal/batch"
	"github.com/banshee-data/paramstudy/internal/collect"
	"github.com/banshee-data/paramstudy/internal/sweep"
)

// ErrNotFound is returned when a run id is unknown or no run exists.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Case states.
const (
	CasePending  = "pending"
	CaseRunning  = "running"
	CaseFinished = "finished"
)

// RunRecord is one stored batch.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	Workers    int        `json:"workers"`
	Policy     string     `json:"policy"`
	Template   string     `json:"template,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// BeginRun stores a run and its cases in submission order.
func (s *Store) BeginRun(rec RunRecord, cases []sweep.CaseDescriptor) error {
	if rec.Status == "" {
		rec.Status = RunRunning
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run %s: %w", rec.RunID, err)
	}
	defer tx.Rollback()

	err = retryOnBusy(func() error {
		_, err := tx.Exec(`
			INSERT INTO study_runs (run_id, workers, policy, template, status, started_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.Workers, rec.Policy, nullStr(rec.Template), rec.Status, formatTime(rec.StartedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.RunID, err)
	}
	for i, c := range cases {
		descriptor, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode case %s: %w", c.ID(), err)
		}
		if _, err := tx.Exec(`
			INSERT INTO study_cases (run_id, case_id, position, descriptor, state)
			VALUES (?, ?, ?, ?, ?)`,
			rec.RunID, c.ID(), i, string(descriptor), CasePending,
		); err != nil {
			return fmt.Errorf("inserting case %s: %w", c.ID(), err)
		}
	}
	return tx.Commit()
}

// FinishRun marks a run completed, or failed when any case failed.
func (s *Store) FinishRun(runID string, finished time.Time, anyFailed bool) error {
	status := RunCompleted
	if anyFailed {
		status = RunFailed
	}
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`UPDATE study_runs SET status = ?, finished_at = ? WHERE run_id = ?`,
			status, formatTime(finished), runID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// MarkStarted records that a case was dispatched.
func (s *Store) MarkStarted(runID, caseID string, at time.Time) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`UPDATE study_cases SET state = ?, started_at = ? WHERE run_id = ? AND case_id = ?`,
			CaseRunning, formatTime(at), runID, caseID)
		return err
	})
}

// RecordResult stores the outcome of one case, replacing any earlier one.
func (s *Store) RecordResult(runID string, r batch.JobResult, at time.Time) error {
	var collection interface{}
	if r.Collection != nil {
		b, err := json.Marshal(r.Collection)
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", r.CaseID, err)
		}
		collection = string(b)
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO study_job_results (
				run_id, case_id, status, elapsed_ms, diagnostic, exit_code,
				dispatched, collection, finished_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.CaseID, string(r.Status), r.Elapsed.Milliseconds(), nullStr(r.Diagnostic),
			r.ExitCode, r.Dispatched, collection, formatTime(at),
		)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(`UPDATE study_cases SET state = ? WHERE run_id = ? AND case_id = ?`,
			CaseFinished, runID, r.CaseID)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording result %s/%s: %w", runID, r.CaseID, err)
	}
	return nil
}

// GetRun returns one run.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, workers, policy, template, status, started_at, finished_at
		FROM study_runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, workers, policy, template, status, started_at, finished_at
		FROM study_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	return scanRun(row)
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, workers, policy, template, status, started_at, finished_at
		FROM study_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Cases returns the descriptors of a run in submission order.
func (s *Store) Cases(runID string) ([]sweep.CaseDescriptor, error) {
	rows, err := s.db.Query(`SELECT descriptor FROM study_cases WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing cases of %s: %w", runID, err)
	}
	defer rows.Close()

	var cases []sweep.CaseDescriptor
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var c sweep.CaseDescriptor
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode case of %s: %w", runID, err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("cases of %s: %w", runID, ErrNotFound)
	}
	return cases, nil
}

// Results returns the stored job results of a run in submission order.
// Cases without a result yet are omitted.
func (s *Store) Results(runID string) ([]batch.JobResult, error) {
	rows, err := s.db.Query(`
		SELECT r.case_id, r.status, r.elapsed_ms, r.diagnostic, r.exit_code, r.dispatched, r.collection
		FROM study_job_results r
		JOIN study_cases c ON c.run_id = r.run_id AND c.case_id = r.case_id
		WHERE r.run_id = ? ORDER BY c.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing results of %s: %w", runID, err)
	}
	defer rows.Close()

	var results []batch.JobResult
	for rows.Next() {
		var (
			r          batch.JobResult
			status     string
			elapsedMs  int64
			diagnostic sql.NullString
			collection sql.NullString
		)
		if err := rows.Scan(&r.CaseID, &status, &elapsedMs, &diagnostic, &r.ExitCode, &r.Dispatched, &collection); err != nil {
			return nil, err
		}
		r.Status = batch.Status(status)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.Diagnostic = diagnostic.String
		if collection.Valid {
			var c collect.Collection
			if err := json.Unmarshal([]byte(collection.String), &c); err != nil {
				return nil, fmt.Errorf("decode collection %s: %w", r.CaseID, err)
			}
			r.Collection = &c
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec      RunRecord
		template sql.NullString
		started  string
		finished sql.NullString
	)
	err := row.Scan(&rec.RunID, &rec.Workers, &rec.Policy, &template, &rec.Status, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scanning run: %w", err)
	}
	rec.Template = template.String
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return RunRecord{}, fmt.Errorf("run %s started_at: %w", rec.RunID, err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return RunRecord{}, fmt.Errorf("run %s finished_at: %w", rec.RunID, err)
		}
		rec.FinishedAt = &t
	}
	return rec, nil
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
