// Package notify provides Notifier implementations used by the async runner.
package notify

import (
	"context"
	"sync"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/logging"
)

// Notification types emitted on pipeline completion.
const (
	TypePipelineCompleted = "pipeline_completed"
	TypePipelineFailed    = "pipeline_failed"
)

// InMemory records notifications; safe for concurrent use.
type InMemory struct {
	mu   sync.Mutex
	sent []core.Notification
}

var _ core.Notifier = (*InMemory)(nil)

// NewInMemory creates an empty in-memory notifier.
func NewInMemory() *InMemory { return &InMemory{} }

// Notify implements core.Notifier.
func (n *InMemory) Notify(_ context.Context, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg.Metadata = msg.Metadata.Clone()
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns a copy of all notifications, oldest first.
func (n *InMemory) Sent() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.sent...)
}

// For returns the notifications addressed to recipient.
func (n *InMemory) For(recipient string) []core.Notification {
	var out []core.Notification
	for _, msg := range n.Sent() {
		if msg.RecipientID == recipient {
			out = append(out, msg)
		}
	}
	return out
}

// Log writes notifications to a logger.
type Log struct {
	logger logging.Logger
	lang   string
}

var _ core.Notifier = (*Log)(nil)

// NewLog creates a notifier logging titles in lang.
func NewLog(logger logging.Logger, lang string) *Log {
	return &Log{logger: logging.OrNoOp(logger), lang: core.NormalizeLang(lang)}
}

// Notify implements core.Notifier.
func (n *Log) Notify(_ context.Context, msg core.Notification) error {
	n.logger.Info("notify.send", "recipient", msg.RecipientID, "type", msg.Type, "title", msg.Title.Get(n.lang), "message", msg.Message.Get(n.lang))
	return nil
}
