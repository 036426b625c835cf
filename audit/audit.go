// Package audit provides AuditLogger implementations. Audit writes are fire
// and forget: callers log a returned error and carry on.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/logging"
)

// InMemoryStore keeps audit entries in process memory. It is safe for
// concurrent access; Entries returns copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []core.AuditEntry
}

var _ core.AuditLogger = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory audit log.
func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

// Record implements core.AuditLogger.
func (s *InMemoryStore) Record(_ context.Context, e core.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Details = e.Details.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns recorded entries, oldest first. A non-empty action filters by action.
func (s *InMemoryStore) Entries(action string) []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if action != "" && e.Action != action {
			continue
		}
		e.Details = e.Details.Clone()
		out = append(out, e)
	}
	return out
}

// LogStore writes audit entries to a logger.
type LogStore struct {
	logger logging.Logger
}

var _ core.AuditLogger = (*LogStore)(nil)

// NewLogStore creates a LogStore. A nil logger discards entries.
func NewLogStore(logger logging.Logger) *LogStore {
	return &LogStore{logger: logging.OrNoOp(logger)}
}

// Record implements core.AuditLogger.
func (s *LogStore) Record(_ context.Context, e core.AuditEntry) error {
	s.logger.Info("audit.record", "action", e.Action, "resource_type", e.ResourceType, "user_id", e.UserID, "details", map[string]any(e.Details))
	return nil
}

// Multi fans an entry out to every logger and returns the first error.
type Multi []core.AuditLogger

// Record implements core.AuditLogger.
func (m Multi) Record(ctx context.Context, e core.AuditEntry) error {
	var first error
	for _, l := range m {
		if err := l.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
