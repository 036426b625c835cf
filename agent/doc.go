// Package agent contains the generic agent runner and the agent registry.
//
// An agent is one LLM-backed unit of work. Concrete agents (see package
// agents) supply an immutable Config plus a Behavior; the runner in this
// package owns everything around Behavior.Execute:
//
//  1. Feature gating: the agent's flag key is consulted first. A disabled
//     or missing flag produces a skipped task record and ErrDisabled
//     without calling the LLM.
//  2. Task tracking: pending -> running -> completed | failed, with a no-op
//     stand-in when the task store is unreachable.
//  3. Technical validation: parse failures and Validator errors turn a
//     successful LLM call into a failed Result (ErrInvalidOutput).
//  4. Business decision: when run as a gatekeeper the DecisionRule inspects
//     the output, and a rejection fails the Result (ErrRejected) although
//     the call itself worked.
//  5. Audit and metrics: one audit entry and one metrics observation per run.
//
// Panics inside Execute are recovered and reported as failed results, so a
// misbehaving agent cannot take down a pipeline run.
//
// Registry is the explicitly constructed name -> agent lookup table shared
// by the orchestrator and the async runner.
package agent
