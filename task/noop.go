package task

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/core"
)

// NoopRecord accepts every transition and stores nothing.
type NoopRecord struct{}

var _ core.TaskRecord = NoopRecord{}

func (NoopRecord) ID() string                                           { return "" }
func (NoopRecord) MarkRunning(context.Context) error                    { return nil }
func (NoopRecord) MarkCompleted(context.Context, core.Completion) error { return nil }
func (NoopRecord) MarkFailed(context.Context, string) error             { return nil }

// NoopStore hands out NoopRecords.
type NoopStore struct{}

var _ core.TaskStore = NoopStore{}

// Create implements core.TaskStore.
func (NoopStore) Create(context.Context, core.TaskSpec) (core.TaskRecord, error) {
	return NoopRecord{}, nil
}
