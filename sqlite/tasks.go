package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
	"github.com/burhanettinuludag/clinicmesh/task"
)

const taskColumns = `id, agent_name, task_type, status, input_data, output_data, error_message,
	retry_count, tokens_used, cost, duration_ms, llm_provider, llm_model,
	parent_task_id, created_by, created_at, completed_at`

// Create inserts a new record. Input string values are truncated.
func (s *Store) Create(ctx context.Context, spec core.TaskSpec) (core.TaskRecord, error) {
	status := spec.Status
	if status == "" {
		status = core.TaskPending
	}
	input, err := encodeData(spec.Input.Snapshot())
	if err != nil {
		return nil, err
	}
	now := formatTime(s.now())
	var completed sql.NullString
	if status.Terminal() {
		completed = nullString(now)
	}

	id := util.NewID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, agent_name, task_type, status, input_data, parent_task_id, created_by, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, spec.AgentName, spec.TaskType, string(status), input, nullString(spec.ParentID), spec.CreatedBy, now, completed)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &record{id: id, store: s}, nil
}

// Get returns the stored record.
func (s *Store) Get(ctx context.Context, id string) (core.TaskSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	snap, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TaskSnapshot{}, task.ErrNotFound
	}
	return snap, err
}

// Children returns the records created under parentID in creation order.
func (s *Store) Children(ctx context.Context, parentID string) ([]core.TaskSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_task_id = ? ORDER BY rowid`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.TaskSnapshot
	for rows.Next() {
		snap, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (core.TaskSnapshot, error) {
	var (
		snap                        core.TaskSnapshot
		status, input, created      string
		output, parent, completedAt sql.NullString
	)
	err := sc.Scan(&snap.ID, &snap.AgentName, &snap.TaskType, &status, &input, &output, &snap.Error,
		&snap.RetryCount, &snap.Tokens, &snap.Cost, &snap.DurationMs, &snap.Provider, &snap.Model,
		&parent, &snap.CreatedBy, &created, &completedAt)
	if err != nil {
		return core.TaskSnapshot{}, err
	}
	snap.Status = core.TaskStatus(status)
	snap.Input = decodeData(input)
	snap.Output = decodeData(output.String)
	snap.ParentID = parent.String
	snap.CreatedAt = parseTime(created)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		snap.CompletedAt = &t
	}
	return snap, nil
}

// transition moves id to the target status inside one transaction. set holds
// extra column assignments bound to args.
func (s *Store) transition(ctx context.Context, id string, to core.TaskStatus, set string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var from string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return task.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}
	if err := task.CheckTransition(core.TaskStatus(from), to); err != nil {
		return err
	}

	query := `UPDATE tasks SET status = ?`
	params := []any{string(to)}
	if to.Terminal() {
		query += `, completed_at = ?`
		params = append(params, formatTime(s.now()))
	}
	if set != "" {
		query += ", " + set
		params = append(params, args...)
	}
	query += ` WHERE id = ?`
	params = append(params, id)
	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return tx.Commit()
}

type record struct {
	id    string
	store *Store
}

func (r *record) ID() string { return r.id }

func (r *record) MarkRunning(ctx context.Context) error {
	return r.store.transition(ctx, r.id, core.TaskRunning, "")
}

func (r *record) MarkCompleted(ctx context.Context, c core.Completion) error {
	output, err := encodeData(c.Output.Snapshot())
	if err != nil {
		return err
	}
	return r.store.transition(ctx, r.id, core.TaskCompleted,
		`output_data = ?, tokens_used = ?, duration_ms = ?, llm_provider = ?, llm_model = ?, cost = ?, retry_count = ?`,
		output, c.Tokens, c.DurationMs, c.Provider, c.Model, c.Cost, c.RetryCount)
}

func (r *record) MarkFailed(ctx context.Context, message string) error {
	return r.store.transition(ctx, r.id, core.TaskFailed, `error_message = ?`, message)
}
