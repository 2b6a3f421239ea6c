package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a harvest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one harvest over a time window.
type Run struct {
	ID         string
	From       time.Time
	To         time.Time
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     RunStatus
	Report     json.RawMessage
}

// Failure is a document a run could not process.
type Failure struct {
	Identifier string
	Reason     string
}

// BeginRun records the start of a run.
// Returns an error if the run ID has been used before.
func (s *Store) BeginRun(ctx context.Context, id string, from, to time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, window_from, window_to, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, formatTime(from), formatTime(to), s.timestamp(), string(RunRunning))
	if err != nil {
		return fmt.Errorf("begin run %s: %w", id, err)
	}
	return nil
}

// FinishRun marks a run completed or failed and stores its report.
// The report is serialized with encoding/json; a nil report is stored as {}.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, report any) error {
	if status != RunCompleted && status != RunFailed {
		return fmt.Errorf("finish run %s: invalid status %q", id, status)
	}
	payload := []byte("{}")
	if report != nil {
		var err error
		if payload, err = json.Marshal(report); err != nil {
			return fmt.Errorf("finish run %s: marshal report: %w", id, err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, report = ?
		WHERE id = ? AND status = ?
	`, string(status), s.timestamp(), string(payload), id, string(RunRunning))
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: no running run: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns a single run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, window_from, window_to, started_at, finished_at, status, report
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, window_from, window_to, started_at, finished_at, status, report
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// RecordFailure stores a per-document failure for a run. Recording the same
// identifier twice keeps the latest reason.
func (s *Store) RecordFailure(ctx context.Context, runID, identifier, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_failures (run_id, identifier, reason)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, identifier) DO UPDATE SET reason = excluded.reason
	`, runID, identifier, reason)
	if err != nil {
		return fmt.Errorf("record failure %s/%s: %w", runID, identifier, err)
	}
	return nil
}

// Failures returns the failures recorded for a run, ordered by identifier.
func (s *Store) Failures(ctx context.Context, runID string) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, reason
		FROM run_failures
		WHERE run_id = ?
		ORDER BY identifier COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failures %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Identifier, &f.Reason); err != nil {
			return nil, fmt.Errorf("failures %s: %w", runID, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failures %s: %w", runID, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                      Run
		from, to, started, state string
		finished                 sql.NullString
		report                   string
	)
	if err := row.Scan(&run.ID, &from, &to, &started, &finished, &state, &report); err != nil {
		return Run{}, err
	}
	var err error
	if run.From, err = parseTime(from); err != nil {
		return Run{}, fmt.Errorf("window_from: %w", err)
	}
	if run.To, err = parseTime(to); err != nil {
		return Run{}, fmt.Errorf("window_to: %w", err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, fmt.Errorf("finished_at: %w", err)
		}
	}
	run.Status = RunStatus(state)
	run.Report = json.RawMessage(report)
	return run, nil
}
