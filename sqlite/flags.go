package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IsEnabled reports the stored flag value. A missing key is disabled.
func (s *Store) IsEnabled(ctx context.Context, key string) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM feature_flags WHERE key = ?`, key).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", key, err)
	}
	return enabled, nil
}

// SetFlag creates or updates a flag.
func (s *Store) SetFlag(ctx context.Context, key string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_flags (key, enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		key, enabled, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("write flag %s: %w", key, err)
	}
	return nil
}

// SetFlags writes every flag in one transaction.
func (s *Store) SetFlags(ctx context.Context, flags map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := formatTime(s.now())
	for key, enabled := range flags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO feature_flags (key, enabled, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
			key, enabled, now)
		if err != nil {
			return fmt.Errorf("write flag %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// DeleteFlag removes a flag, which turns it off.
func (s *Store) DeleteFlag(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feature_flags WHERE key = ?`, key)
	return err
}
