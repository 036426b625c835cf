// Package task provides TaskStore implementations for agent and pipeline
// invocation records.
//
// InMemoryStore keeps records in a process local map and is safe for
// concurrent use. NoopRecord is the stand-in used when a store is
// unreachable, so an agent run never fails because tracking failed.
//
// Records follow one lifecycle: pending -> running -> completed | failed.
// Skipped and cancelled are terminal as well; any mutation after a terminal
// state returns ErrTerminal.
package task
