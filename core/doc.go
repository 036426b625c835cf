// Package core provides the foundational domain types and collaborator
// interfaces used by clinicmesh. It defines:
//
//   - Data, the key/value bag threaded through agents and pipelines
//   - Localized, a TR/EN text pair with explicit language fallback
//   - TaskStore / TaskRecord, the lifecycle contract for invocation records
//   - FlagStore, AuditLogger, ContentSearcher and Notifier, the narrow
//     contracts to collaborators outside the orchestration core
//
// The package keeps implementation concerns (persistence, orchestration,
// concrete agents) out of scope, exposing small interfaces to enable custom
// backends. See the task, flag, audit, content, notify and sqlite packages for
// implementations.
package core
