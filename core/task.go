package core

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state of a task record.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped, TaskCancelled:
		return true
	default:
		return false
	}
}

// TaskTypePipeline is the task type of the parent record of a pipeline run.
const TaskTypePipeline = "full_pipeline"

// TaskSpec describes a record to create.
type TaskSpec struct {
	AgentName string
	TaskType  string
	Input     Data
	// Status defaults to TaskPending. TaskSkipped creates a terminal record directly.
	Status    TaskStatus
	CreatedBy string
	ParentID  string
}

// Completion carries the fields stored when a record completes.
type Completion struct {
	Output     Data
	Tokens     int
	DurationMs int64
	Provider   string
	Model      string
	Cost       float64
	RetryCount int
}

// TaskRecord is one persisted invocation record. Each record is written only
// by the invocation that created it.
type TaskRecord interface {
	ID() string
	MarkRunning(ctx context.Context) error
	MarkCompleted(ctx context.Context, c Completion) error
	MarkFailed(ctx context.Context, message string) error
}

// TaskStore creates task records.
type TaskStore interface {
	Create(ctx context.Context, spec TaskSpec) (TaskRecord, error)
}

// TaskSnapshot is a read-only view of a stored record.
type TaskSnapshot struct {
	ID          string     `json:"id"`
	AgentName   string     `json:"agent_name"`
	TaskType    string     `json:"task_type"`
	Status      TaskStatus `json:"status"`
	Input       Data       `json:"input_data,omitempty"`
	Output      Data       `json:"output_data,omitempty"`
	Error       string     `json:"error_message,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Tokens      int        `json:"tokens_used"`
	Cost        float64    `json:"cost"`
	DurationMs  int64      `json:"duration_ms"`
	Provider    string     `json:"llm_provider,omitempty"`
	Model       string     `json:"llm_model,omitempty"`
	ParentID    string     `json:"parent_task_id,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskReader is implemented by stores that can return stored records.
type TaskReader interface {
	Get(ctx context.Context, id string) (TaskSnapshot, error)
	Children(ctx context.Context, parentID string) ([]TaskSnapshot, error)
}
