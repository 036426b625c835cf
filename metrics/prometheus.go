package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	llmRequests     *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmCost         *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	agentRuns       *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec
	pipelineRuns    *prometheus.CounterVec
	pipelineSeconds *prometheus.HistogramVec
	jobs            *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors with reg. A nil reg uses
// the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusRecorder{
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM provider attempts by provider, model and status",
			},
			[]string{"provider", "model", "status", "error_type"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens reported by providers",
			},
			[]string{"provider", "model"},
		),
		llmCost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Estimated cost in USD of LLM requests",
			},
			[]string{"provider", "model"},
		),
		llmDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM provider attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		agentRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Total number of agent runs by agent and status",
			},
			[]string{"agent", "status"},
		),
		agentDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		pipelineRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by pipeline and status",
			},
			[]string{"pipeline", "status"},
		),
		pipelineSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Duration of pipeline runs in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"pipeline"},
		),
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_jobs_total",
				Help: "Async pipeline job transitions",
			},
			[]string{"event"},
		),
	}
}

// ObserveLLMCall records metrics for one provider attempt.
func (p *PrometheusRecorder) ObserveLLMCall(provider, model string, tokens int, cost float64, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.llmRequests.WithLabelValues(provider, model, status, errorType).Inc()
	if success {
		p.llmTokens.WithLabelValues(provider, model).Add(float64(tokens))
		p.llmCost.WithLabelValues(provider, model).Add(cost)
	}
	p.llmDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// ObserveAgentRun records metrics for one agent run.
func (p *PrometheusRecorder) ObserveAgentRun(agent, status string, duration time.Duration) {
	p.agentRuns.WithLabelValues(agent, status).Inc()
	p.agentDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObservePipelineRun records metrics for one pipeline run.
func (p *PrometheusRecorder) ObservePipelineRun(pipeline string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.pipelineRuns.WithLabelValues(pipeline, status).Inc()
	p.pipelineSeconds.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// IncJob increments the async job counter.
func (p *PrometheusRecorder) IncJob(event string) {
	p.jobs.WithLabelValues(event).Inc()
}
