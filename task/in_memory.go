package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// InMemoryStore is a volatile TaskStore storing records in a process local
// map. It is safe for concurrent access and best suited for tests, the CLI
// and single process deployments. Snapshots returned by Get and Children are
// copies.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*core.TaskSnapshot
	now   func() time.Time
}

var (
	_ core.TaskStore  = (*InMemoryStore)(nil)
	_ core.TaskReader = (*InMemoryStore)(nil)
)

// NewInMemoryStore constructs an empty in-memory task store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[string]*core.TaskSnapshot), now: time.Now}
}

// Create stores a new record. Input string values are truncated.
func (s *InMemoryStore) Create(_ context.Context, spec core.TaskSpec) (core.TaskRecord, error) {
	status := spec.Status
	if status == "" {
		status = core.TaskPending
	}
	now := s.now()
	snap := &core.TaskSnapshot{
		ID:        util.NewID(),
		AgentName: spec.AgentName,
		TaskType:  spec.TaskType,
		Status:    status,
		Input:     spec.Input.Snapshot(),
		ParentID:  spec.ParentID,
		CreatedBy: spec.CreatedBy,
		CreatedAt: now,
	}
	if status.Terminal() {
		snap.CompletedAt = &now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[snap.ID] = snap
	return &record{id: snap.ID, store: s}, nil
}

// Get returns a copy of the stored record.
func (s *InMemoryStore) Get(_ context.Context, id string) (core.TaskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.tasks[id]
	if !ok {
		return core.TaskSnapshot{}, ErrNotFound
	}
	return copySnapshot(snap), nil
}

// Children returns the records whose parent is parentID, oldest first.
func (s *InMemoryStore) Children(_ context.Context, parentID string) ([]core.TaskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.TaskSnapshot
	for _, snap := range s.tasks {
		if snap.ParentID == parentID {
			out = append(out, copySnapshot(snap))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// List returns every record, oldest first.
func (s *InMemoryStore) List() []core.TaskSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.TaskSnapshot, 0, len(s.tasks))
	for _, snap := range s.tasks {
		out = append(out, copySnapshot(snap))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *InMemoryStore) update(id string, to core.TaskStatus, fn func(*core.TaskSnapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if err := CheckTransition(snap.Status, to); err != nil {
		return err
	}
	snap.Status = to
	if to.Terminal() {
		now := s.now()
		snap.CompletedAt = &now
	}
	if fn != nil {
		fn(snap)
	}
	return nil
}

type record struct {
	id    string
	store *InMemoryStore
}

func (r *record) ID() string { return r.id }

func (r *record) MarkRunning(_ context.Context) error {
	return r.store.update(r.id, core.TaskRunning, nil)
}

func (r *record) MarkCompleted(_ context.Context, c core.Completion) error {
	return r.store.update(r.id, core.TaskCompleted, func(s *core.TaskSnapshot) {
		s.Output = c.Output.Snapshot()
		s.Tokens = c.Tokens
		s.DurationMs = c.DurationMs
		s.Provider = c.Provider
		s.Model = c.Model
		s.Cost = c.Cost
		s.RetryCount = c.RetryCount
	})
}

func (r *record) MarkFailed(_ context.Context, message string) error {
	return r.store.update(r.id, core.TaskFailed, func(s *core.TaskSnapshot) {
		s.Error = message
	})
}

func copySnapshot(s *core.TaskSnapshot) core.TaskSnapshot {
	out := *s
	out.Input = s.Input.Clone()
	out.Output = s.Output.Clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
