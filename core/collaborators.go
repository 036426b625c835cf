package core

import (
	"context"
	"time"
)

// FlagStore answers feature flag lookups. A missing key must be reported as
// disabled; callers treat errors as disabled too.
type FlagStore interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

// AuditEntry is one audit log line.
type AuditEntry struct {
	UserID       string    `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	Details      Data      `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLogger records audit entries. Failures are reported to the caller,
// which logs and discards them.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Document is an indexed content item.
type Document struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Title Localized `json:"title"`
	Body  Localized `json:"body"`
}

// ContentQuery is a keyword query; documents matching any keyword qualify.
type ContentQuery struct {
	Keywords []string
	Limit    int
}

// ContentSearcher performs keyword retrieval over indexed content.
type ContentSearcher interface {
	Search(ctx context.Context, q ContentQuery) ([]Document, error)
}

// Notification is a user-facing message.
type Notification struct {
	RecipientID string    `json:"recipient_id"`
	Type        string    `json:"type"`
	Title       Localized `json:"title"`
	Message     Localized `json:"message"`
	Metadata    Data      `json:"metadata,omitempty"`
}

// Notifier creates user notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
