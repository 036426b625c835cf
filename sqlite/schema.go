package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// CurrentSchemaVersion is the schema version Open migrates to.
const CurrentSchemaVersion = 3

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id             TEXT PRIMARY KEY,
		agent_name     TEXT NOT NULL,
		task_type      TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL,
		input_data     TEXT NOT NULL DEFAULT '{}',
		output_data    TEXT,
		error_message  TEXT NOT NULL DEFAULT '',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		tokens_used    INTEGER NOT NULL DEFAULT 0,
		cost           REAL NOT NULL DEFAULT 0,
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		llm_provider   TEXT NOT NULL DEFAULT '',
		llm_model      TEXT NOT NULL DEFAULT '',
		parent_task_id TEXT REFERENCES tasks(id),
		created_by     TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		completed_at   TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       TEXT NOT NULL DEFAULT '',
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		details       TEXT NOT NULL DEFAULT '{}',
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feature_flags (
		key        TEXT PRIMARY KEY,
		enabled    INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id       TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL DEFAULT '',
		title_tr TEXT NOT NULL DEFAULT '',
		title_en TEXT NOT NULL DEFAULT '',
		body_tr  TEXT NOT NULL DEFAULT '',
		body_en  TEXT NOT NULL DEFAULT ''
	)`,
}

var schemaV2 = []string{
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action)`,
}

// schemaV3 adds the folded text documents are searched on.
var schemaV3 = []string{
	`ALTER TABLE documents ADD COLUMN search_text TEXT NOT NULL DEFAULT ''`,
}

// searchText is the folded form of every localized field, one per line.
func searchText(titleTR, titleEN, bodyTR, bodyEN string) string {
	return util.Fold(strings.Join([]string{titleTR, titleEN, bodyTR, bodyEN}, "\n"))
}

// backfillSearchText fills search_text for documents written before version 3.
func backfillSearchText(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, title_tr, title_en, body_tr, body_en FROM documents`)
	if err != nil {
		return err
	}
	texts := make(map[string]string)
	for rows.Next() {
		var id, titleTR, titleEN, bodyTR, bodyEN string
		if err := rows.Scan(&id, &titleTR, &titleEN, &bodyTR, &bodyEN); err != nil {
			_ = rows.Close()
			return err
		}
		texts[id] = searchText(titleTR, titleEN, bodyTR, bodyEN)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, text := range texts {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET search_text = ? WHERE id = ?`, text, id); err != nil {
			return err
		}
	}
	return nil
}

// migrate brings db to CurrentSchemaVersion.
func migrate(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, CurrentSchemaVersion)
	}
	for v := current + 1; v <= CurrentSchemaVersion; v++ {
		if err := applyVersion(ctx, db, v); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", v, err)
		}
	}
	return nil
}

func applyVersion(ctx context.Context, db *sql.DB, version int) error {
	var (
		stmts []string
		after func(context.Context, *sql.Tx) error
	)
	switch version {
	case 1:
		stmts = schemaV1
	case 2:
		stmts = schemaV2
	case 3:
		stmts, after = schemaV3, backfillSearchText
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if after != nil {
		if err := after(ctx, tx); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied schema version, 0 for an empty database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	err = db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
