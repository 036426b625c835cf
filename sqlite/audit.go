package sqlite

import (
	"context"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/core"
)

// Record appends an audit entry. A zero CreatedAt is stamped with the store clock.
func (s *Store) Record(ctx context.Context, e core.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	details, err := encodeData(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, action, resource_type, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Action, e.ResourceType, details, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns the entries for action, oldest first. An empty action
// returns every entry.
func (s *Store) AuditEntries(ctx context.Context, action string) ([]core.AuditEntry, error) {
	query := `SELECT user_id, action, resource_type, details, created_at FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e                core.AuditEntry
			details, created string
		)
		if err := rows.Scan(&e.UserID, &e.Action, &e.ResourceType, &details, &created); err != nil {
			return nil, err
		}
		e.Details = decodeData(details)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
