package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/balltrack/internal/ballfilter"
)

// CycleSummary is the per-cycle row of a run.
type CycleSummary struct {
	RunID           string                   `json:"run_id"`
	Index           uint64                   `json:"index"`
	Now             time.Time                `json:"now"`
	DetectionCount  int                      `json:"detection_count"`
	HypothesisCount int                      `json:"hypothesis_count"`
	RemovedCount    int                      `json:"removed_count"`
	BestID          string                   `json:"best_id,omitempty"`
	Ball            *ballfilter.BallPosition `json:"ball,omitempty"`
}

// RecordCycle stores the summary of one cycle and a snapshot of every
// hypothesis retained after it.
func (s *Store) RecordCycle(ctx context.Context, runID string, index uint64, input ballfilter.CycleInput, output ballfilter.CycleOutput) error {
	detections := 0
	for _, batch := range input.Measurements {
		detections += len(batch.Detections)
	}

	var bestID interface{}
	if output.BestHypothesis != nil {
		bestID = output.BestHypothesis.ID
	}
	var ballX, ballY, ballVX, ballVY interface{}
	if b := output.BallPosition; b != nil {
		ballX, ballY = b.Position.X, b.Position.Y
		ballVX, ballVY = b.Velocity.X, b.Velocity.Y
	}

	snapshots := make([][]byte, len(output.Hypotheses))
	for i := range output.Hypotheses {
		data, err := json.Marshal(&output.Hypotheses[i])
		if err != nil {
			return fmt.Errorf("marshal hypothesis %s: %w", output.Hypotheses[i].ID, err)
		}
		snapshots[i] = data
	}

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO filter_cycles (
				run_id, cycle_index, now_ns, detection_count, hypothesis_count,
				removed_count, best_id, ball_x, ball_y, ball_vx, ball_vy
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, int64(index), output.Now.UnixNano(), detections, len(output.Hypotheses),
			len(output.RemovedHypotheses), bestID, ballX, ballY, ballVX, ballVY)
		if err != nil {
			return fmt.Errorf("insert cycle %d: %w", index, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO filter_hypotheses (
				run_id, cycle_index, ordinal, hypothesis_id, validity, last_update_ns, state_json
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare hypothesis insert: %w", err)
		}
		defer stmt.Close()

		for i, h := range output.Hypotheses {
			if _, err := stmt.ExecContext(ctx, runID, int64(index), i, h.ID, h.Validity,
				h.LastUpdate.UnixNano(), string(snapshots[i])); err != nil {
				return fmt.Errorf("insert hypothesis %s: %w", h.ID, err)
			}
		}

		return tx.Commit()
	})
}

// LoadHypotheses returns the hypotheses retained after the given cycle in
// the order the filter held them. The result can seed
// BallFilter.RestoreHypotheses.
func (s *Store) LoadHypotheses(ctx context.Context, runID string, index uint64) ([]ballfilter.Hypothesis, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0 FROM filter_cycles WHERE run_id = ? AND cycle_index = ?`,
		runID, int64(index)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check cycle: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("cycle %d of run %s not recorded", index, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT state_json FROM filter_hypotheses
		WHERE run_id = ? AND cycle_index = ?
		ORDER BY ordinal`, runID, int64(index))
	if err != nil {
		return nil, fmt.Errorf("query hypotheses: %w", err)
	}
	defer rows.Close()

	hypotheses := []ballfilter.Hypothesis{}
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan hypothesis: %w", err)
		}
		var h ballfilter.Hypothesis
		if err := json.Unmarshal([]byte(state), &h); err != nil {
			return nil, fmt.Errorf("decode hypothesis: %w", err)
		}
		hypotheses = append(hypotheses, h)
	}
	return hypotheses, rows.Err()
}

// ListCycles returns the cycle summaries of a run in cycle order.
func (s *Store) ListCycles(ctx context.Context, runID string) ([]CycleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_index, now_ns, detection_count, hypothesis_count, removed_count,
		       best_id, ball_x, ball_y, ball_vx, ball_vy
		FROM filter_cycles
		WHERE run_id = ?
		ORDER BY cycle_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var cycles []CycleSummary
	for rows.Next() {
		var (
			c                    CycleSummary
			index, nowNs         int64
			bestID               sql.NullString
			ballX, ballY, vX, vY sql.NullFloat64
		)
		if err := rows.Scan(&index, &nowNs, &c.DetectionCount, &c.HypothesisCount, &c.RemovedCount,
			&bestID, &ballX, &ballY, &vX, &vY); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.RunID = runID
		c.Index = uint64(index)
		c.Now = time.Unix(0, nowNs).UTC()
		c.BestID = bestID.String
		if ballX.Valid && ballY.Valid {
			c.Ball = &ballfilter.BallPosition{}
			c.Ball.Position.X, c.Ball.Position.Y = ballX.Float64, ballY.Float64
			c.Ball.Velocity.X, c.Ball.Velocity.Y = vX.Float64, vY.Float64
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
