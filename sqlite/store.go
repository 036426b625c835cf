package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/logging"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Options configures a Store.
type Options struct {
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
	Logger      logging.Logger
}

// Store is the SQLite implementation of the task, audit, flag and content
// contracts. SQLite allows one writer, so the pool is a single connection
// and all methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger logging.Logger
}

var (
	_ core.TaskStore       = (*Store)(nil)
	_ core.TaskReader      = (*Store)(nil)
	_ core.AuditLogger     = (*Store)(nil)
	_ core.FlagStore       = (*Store)(nil)
	_ core.ContentSearcher = (*Store)(nil)
)

// Open opens (creating when needed) the database at path and migrates it to
// CurrentSchemaVersion. path may be a file path, a "file:" URI or MemoryDSN.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{BusyTimeout: 5 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger := logging.OrNoOp(opts.Logger)
	logger.Info("sqlite.opened", "path", path, "schema_version", CurrentSchemaVersion)
	return &Store{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for maintenance queries.
func (s *Store) DB() *sql.DB { return s.db }

func dsn(path string, busy time.Duration) string {
	memory := path == "" || path == MemoryDSN
	base := path
	switch {
	case memory:
		base = "file::memory:"
	case !strings.HasPrefix(path, "file:"):
		base = "file:" + path
	}

	pragmas := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
	}
	if !memory {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(pragmas, "&")
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeData(d core.Data) (string, error) {
	if d == nil {
		d = core.Data{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}
	return string(b), nil
}

func decodeData(s string) core.Data {
	if s == "" {
		return nil
	}
	var d core.Data
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil
	}
	return d
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
