// Package sqlite persists task records, audit entries, feature flags and
// indexed content in a single SQLite database (modernc.org/sqlite, no cgo).
//
// One *Store serves every collaborator contract the agents and the engine
// need, so a deployment wires the same value as TaskStore, AuditLogger,
// FlagStore and ContentSearcher:
//
//	st, err := sqlite.Open("clinicmesh.db")
//	if err != nil { ... }
//	defer st.Close()
//
// The schema is versioned; Open creates a fresh database at the current
// version and migrates older ones forward.
package sqlite
