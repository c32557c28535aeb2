package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run describes one recorded filter session.
type Run struct {
	RunID      string          `json:"run_id"`
	Label      string          `json:"label"`
	Version    string          `json:"version"`
	TuningJSON json.RawMessage `json:"tuning_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// BeginRun inserts a run. If RunID is empty a UUID is generated, and
// CreatedAt defaults to now.
func (s *Store) BeginRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var tuning interface{}
	if len(run.TuningJSON) > 0 {
		tuning = string(run.TuningJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO filter_runs (run_id, label, version, tuning_json, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.Label, run.Version, tuning, run.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, label, version, tuning_json, created_at
		FROM filter_runs
		WHERE run_id = ?`, runID)

	var r Run
	var tuning sql.NullString
	if err := row.Scan(&r.RunID, &r.Label, &r.Version, &tuning, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if tuning.Valid {
		r.TuningJSON = json.RawMessage(tuning.String)
	}
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, label, version, tuning_json, created_at
		FROM filter_runs
		ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var tuning sql.NullString
		if err := rows.Scan(&r.RunID, &r.Label, &r.Version, &tuning, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if tuning.Valid {
			r.TuningJSON = json.RawMessage(tuning.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
