// Package metrics records LLM calls, agent runs and pipeline runs.
package metrics

import "time"

// Recorder defines the interface for recording orchestration metrics.
type Recorder interface {
	// ObserveLLMCall records one provider attempt.
	ObserveLLMCall(provider, model string, tokens int, cost float64, success bool, errorType string, duration time.Duration)

	// ObserveAgentRun records one agent invocation. Status is one of
	// completed, failed, rejected or skipped.
	ObserveAgentRun(agent, status string, duration time.Duration)

	// ObservePipelineRun records one pipeline run.
	ObservePipelineRun(pipeline string, success bool, duration time.Duration)

	// IncJob counts async job transitions (queued, started, retried, completed, failed).
	IncJob(event string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveLLMCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLLMCall(_, _ string, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

// ObserveAgentRun does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveAgentRun(_, _ string, _ time.Duration) {}

// ObservePipelineRun does nothing in the no-op recorder.
func (n *NoopRecorder) ObservePipelineRun(_ string, _ bool, _ time.Duration) {}

// IncJob does nothing in the no-op recorder.
func (n *NoopRecorder) IncJob(_ string) {}

// OrNop returns r, or a no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}
