package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CursorSince names the cursor holding the upper bound of the last completed
// harvest window.
const CursorSince = "since"

// GetCursor returns the value of a named cursor.
// Returns ErrNotFound if the cursor has never been set.
func (s *Store) GetCursor(ctx context.Context, name string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM cursors WHERE name = ?
	`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("get cursor %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cursor %q: %w", name, err)
	}
	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("get cursor %q: %w", name, err)
	}
	return t, nil
}

// SetCursor stores a named cursor, replacing any earlier value.
func (s *Store) SetCursor(ctx context.Context, name string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (name, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, name, formatTime(t), s.timestamp())
	if err != nil {
		return fmt.Errorf("set cursor %q: %w", name, err)
	}
	return nil
}

// ClearCursor removes a named cursor. Clearing an unset cursor is a no-op.
func (s *Store) ClearCursor(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cursors WHERE name = ?`, name); err != nil {
		return fmt.Errorf("clear cursor %q: %w", name, err)
	}
	return nil
}
