package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/paramstudy/internal/history"
)

// SaveSummary stores the final-iteration values of one case.
func (s *Store) SaveSummary(runID, caseID string, f history.Final, at time.Time) error {
	residuals, err := json.Marshal(f.Residuals)
	if err != nil {
		return fmt.Errorf("encode residuals %s: %w", caseID, err)
	}
	var cd, cl interface{}
	if f.HasDrag {
		cd = f.Drag
	}
	if f.HasLift {
		cl = f.Lift
	}
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO study_summaries (run_id, case_id, cd, cl, iterations, residuals, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, caseID, cd, cl, f.Iterations, string(residuals), formatTime(at),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving summary %s/%s: %w", runID, caseID, err)
	}
	return nil
}

// Summaries returns the stored summaries of a run keyed by case id.
func (s *Store) Summaries(runID string) (map[string]history.Final, error) {
	rows, err := s.db.Query(`SELECT case_id, cd, cl, iterations, residuals FROM study_summaries WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing summaries of %s: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[string]history.Final)
	for rows.Next() {
		var (
			caseID    string
			cd, cl    sql.NullFloat64
			f         history.Final
			residuals sql.NullString
		)
		if err := rows.Scan(&caseID, &cd, &cl, &f.Iterations, &residuals); err != nil {
			return nil, err
		}
		f.Drag, f.HasDrag = cd.Float64, cd.Valid
		f.Lift, f.HasLift = cl.Float64, cl.Valid
		if residuals.Valid {
			if err := json.Unmarshal([]byte(residuals.String), &f.Residuals); err != nil {
				return nil, fmt.Errorf("decode residuals %s: %w", caseID, err)
			}
		}
		out[caseID] = f
	}
	return out, rows.Err()
}
