package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/metrics"
	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/burhanettinuludag/clinicmesh/task"
)

// Audit action and resource type written for every non-skipped run.
const (
	AuditActionRun   = "agent_run"
	AuditResourceRun = "agent_task"
)

// Run status labels used in logs, metrics and audit details.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusSkipped   = "skipped"
)

// Config is the immutable declaration of an agent.
type Config struct {
	Name         string
	Description  string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	// FlagKey defaults to "agent.<name>.enabled".
	FlagKey  string
	TaskType string
}

// FlagKeyFor returns the default feature flag key of an agent.
func FlagKeyFor(name string) string { return "agent." + name + ".enabled" }

func (c Config) withDefaults() Config {
	if c.FlagKey == "" {
		c.FlagKey = FlagKeyFor(c.Name)
	}
	if c.TaskType == "" {
		c.TaskType = c.Name
	}
	return c
}

// Behavior is implemented by every concrete agent.
type Behavior interface {
	Execute(ctx context.Context, env *Env, input core.Data) (core.Data, error)
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, env *Env, input core.Data) (core.Data, error)

// Execute implements Behavior.
func (f BehaviorFunc) Execute(ctx context.Context, env *Env, input core.Data) (core.Data, error) {
	return f(ctx, env, input)
}

// Validator is an optional technical output check.
type Validator interface {
	Validate(output core.Data) error
}

// Decider is implemented by agents that carry their own approve/reject field.
type Decider interface {
	Decision() DecisionRule
}

// Runnable is what the registry holds and the orchestrator calls.
type Runnable interface {
	Name() string
	Config() Config
	Enabled(ctx context.Context) bool
	Run(ctx context.Context, req Request) Result
	Decision() (DecisionRule, bool)
}

// Request is one agent invocation.
type Request struct {
	Input        core.Data
	TriggeredBy  string
	ParentTaskID string
	// Gate, when non-nil, makes this run a gatekeeper step.
	Gate *DecisionRule
}

// Result is the outcome of one run. Exactly one of Success, Skipped or a
// failure (Err != nil) describes it; Rejected refines a failure.
type Result struct {
	Agent      string        `json:"agent"`
	Success    bool          `json:"success"`
	Skipped    bool          `json:"skipped,omitempty"`
	Rejected   bool          `json:"rejected,omitempty"`
	Output     core.Data     `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Err        error         `json:"-"`
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
	TaskID     string        `json:"task_id,omitempty"`
}

// Status returns the run status label.
func (r Result) Status() string {
	switch {
	case r.Success:
		return StatusCompleted
	case r.Skipped:
		return StatusSkipped
	case r.Rejected:
		return StatusRejected
	default:
		return StatusFailed
	}
}

// Options are the collaborators of an agent.
type Options struct {
	LLM     model.ChatClient
	Flags   core.FlagStore
	Tasks   core.TaskStore
	Audit   core.AuditLogger
	Content core.ContentSearcher
	Logger  logging.Logger
	Metrics metrics.Recorder
}

// Agent runs a Behavior under the shared lifecycle.
type Agent struct {
	cfg      Config
	behavior Behavior
	opts     *Options
}

var _ Runnable = (*Agent)(nil)

// New builds an agent. Collaborators default to no-op implementations;
// without a flag store every agent is disabled.
func New(cfg Config, behavior Behavior, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Tasks:   task.NoopStore{},
		Logger:  logging.NoOpLogger{},
		Metrics: metrics.Nop(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Metrics = metrics.OrNop(opts.Metrics)
	if opts.Tasks == nil {
		opts.Tasks = task.NoopStore{}
	}
	return &Agent{cfg: cfg.withDefaults(), behavior: behavior, opts: &opts}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.cfg.Name }

// Config returns the agent configuration.
func (a *Agent) Config() Config { return a.cfg }

// Behavior returns the wrapped behavior.
func (a *Agent) Behavior() Behavior { return a.behavior }

// Decision returns the agent's own decision rule, if it has one.
func (a *Agent) Decision() (DecisionRule, bool) {
	if d, ok := a.behavior.(Decider); ok {
		return d.Decision(), true
	}
	return DecisionRule{}, false
}

// Enabled reports the live feature flag state. Lookup errors and missing
// stores count as disabled.
func (a *Agent) Enabled(ctx context.Context) bool {
	if a.opts.Flags == nil {
		return false
	}
	on, err := a.opts.Flags.IsEnabled(ctx, a.cfg.FlagKey)
	if err != nil {
		a.opts.Logger.Warn("agent.flag.error", "agent", a.cfg.Name, "flag", a.cfg.FlagKey, "error", err)
		return false
	}
	return on
}

// Run executes the agent once.
//
// The steps are fixed: the flag is checked (a disabled agent returns a
// skipped Result wrapping ErrDisabled and records a skipped task), a task
// record is created and marked running, Behavior.Execute runs with panics
// recovered, the output is validated and, when req.Gate is set, the decision
// rule is applied. The task record, audit log and metrics are updated last.
// Failures of those collaborators are logged and never change the Result.
//
// Parameters:
//   - ctx: Cancels the LLM calls made by the behavior
//   - req: Input data, the triggering user, the parent task and an optional gate
//
// Run never panics and never returns an error value; every outcome is
// described by the Result. Result.Err wraps ErrDisabled, ErrInvalidOutput or
// ErrRejected where those apply.
//
// Example:
//
//	res := seo.Run(ctx, agent.Request{Input: core.Data{"title": t, "body": b}})
//	if !res.Success {
//		log.Printf("seo failed: %s", res.Error)
//	}
func (a *Agent) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	log := a.opts.Logger
	input := req.Input.Clone()

	if !a.Enabled(ctx) {
		return a.skip(ctx, req, start)
	}

	rec, err := a.opts.Tasks.Create(ctx, core.TaskSpec{
		AgentName: a.cfg.Name,
		TaskType:  a.cfg.TaskType,
		Input:     input,
		Status:    core.TaskPending,
		CreatedBy: req.TriggeredBy,
		ParentID:  req.ParentTaskID,
	})
	if err != nil {
		log.Warn("agent.task.create_failed", "agent", a.cfg.Name, "error", err)
		rec = task.NoopRecord{}
	}
	if err := rec.MarkRunning(ctx); err != nil {
		log.Warn("agent.task.update_failed", "agent", a.cfg.Name, "task_id", rec.ID(), "error", err)
	}
	log.Info("agent.run.start", "agent", a.cfg.Name, "task_id", rec.ID(), "gatekeeper", req.Gate != nil)

	env := newEnv(a.cfg, a.opts)
	output, runErr := a.execute(ctx, env, input)
	rejected := false
	if runErr == nil {
		runErr = a.validate(output)
	}
	if runErr == nil && req.Gate != nil {
		if rej, reason := req.Gate.Evaluate(output); rej {
			rejected = true
			runErr = fmt.Errorf("%w: %s", ErrRejected, reason)
		}
	}

	usage := env.Usage()
	res := Result{
		Agent:      a.cfg.Name,
		Success:    runErr == nil,
		Rejected:   rejected,
		Output:     output,
		Err:        runErr,
		Provider:   usage.Provider,
		Model:      usage.Model,
		TokensUsed: usage.Tokens,
		Cost:       usage.Cost,
		Duration:   time.Since(start),
		TaskID:     rec.ID(),
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}

	a.finish(ctx, rec, res, usage)
	a.audit(ctx, req, input, res)
	a.opts.Metrics.ObserveAgentRun(a.cfg.Name, res.Status(), res.Duration)
	if sl, ok := log.(*logging.StructuredLogger); ok {
		sl.LogAgentRun(a.cfg.Name, res.Status(), res.Duration, runErr)
	} else {
		log.Info("agent.run.finish", "agent", a.cfg.Name, "status", res.Status(), "duration", res.Duration, "error", res.Error)
	}
	return res
}

func (a *Agent) skip(ctx context.Context, req Request, start time.Time) Result {
	res := Result{
		Agent:   a.cfg.Name,
		Skipped: true,
		Err:     fmt.Errorf("%w: %s (flag %s)", ErrDisabled, a.cfg.Name, a.cfg.FlagKey),
	}
	res.Error = res.Err.Error()
	rec, err := a.opts.Tasks.Create(ctx, core.TaskSpec{
		AgentName: a.cfg.Name,
		TaskType:  a.cfg.TaskType,
		Input:     req.Input,
		Status:    core.TaskSkipped,
		CreatedBy: req.TriggeredBy,
		ParentID:  req.ParentTaskID,
	})
	if err != nil {
		a.opts.Logger.Warn("agent.task.create_failed", "agent", a.cfg.Name, "error", err)
	} else {
		res.TaskID = rec.ID()
	}
	res.Duration = time.Since(start)
	a.opts.Logger.Info("agent.run.skipped", "agent", a.cfg.Name, "flag", a.cfg.FlagKey)
	a.opts.Metrics.ObserveAgentRun(a.cfg.Name, StatusSkipped, res.Duration)
	return res
}

func (a *Agent) execute(ctx context.Context, env *Env, input core.Data) (out core.Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.opts.Logger.Error("agent.run.panic", "agent", a.cfg.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out = nil
			err = fmt.Errorf("agent %s panicked: %v", a.cfg.Name, r)
		}
	}()
	if a.behavior == nil {
		return nil, fmt.Errorf("agent %s has no behavior", a.cfg.Name)
	}
	return a.behavior.Execute(ctx, env, input)
}

func (a *Agent) validate(output core.Data) error {
	if len(output) == 0 {
		return fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}
	if failed, _ := output.Bool(jsonx.KeyParseError); failed {
		return fmt.Errorf("%w: model response could not be parsed", ErrInvalidOutput)
	}
	if v, ok := a.behavior.(Validator); ok {
		if err := v.Validate(output); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOutput, err)
		}
	}
	return nil
}

func (a *Agent) finish(ctx context.Context, rec core.TaskRecord, res Result, usage Usage) {
	var err error
	if res.Success {
		retries := usage.Attempts - usage.Calls
		if retries < 0 {
			retries = 0
		}
		err = rec.MarkCompleted(ctx, core.Completion{
			Output:     res.Output,
			Tokens:     res.TokensUsed,
			DurationMs: res.Duration.Milliseconds(),
			Provider:   res.Provider,
			Model:      res.Model,
			Cost:       res.Cost,
			RetryCount: retries,
		})
	} else {
		err = rec.MarkFailed(ctx, res.Error)
	}
	if err != nil {
		a.opts.Logger.Warn("agent.task.update_failed", "agent", a.cfg.Name, "task_id", rec.ID(), "error", err)
	}
}

func (a *Agent) audit(ctx context.Context, req Request, input core.Data, res Result) {
	if a.opts.Audit == nil {
		return
	}
	details := core.Data{
		"agent":       a.cfg.Name,
		"task_id":     res.TaskID,
		"status":      res.Status(),
		"duration_ms": res.Duration.Milliseconds(),
		"tokens":      res.TokensUsed,
		"provider":    res.Provider,
		"input_keys":  sortedKeys(input),
		"output_keys": sortedKeys(res.Output),
	}
	if res.Error != "" {
		details["error"] = res.Error
	}
	err := a.opts.Audit.Record(ctx, core.AuditEntry{
		UserID:       req.TriggeredBy,
		Action:       AuditActionRun,
		ResourceType: AuditResourceRun,
		Details:      details,
	})
	if err != nil {
		a.opts.Logger.Warn("agent.audit.failed", "agent", a.cfg.Name, "error", err)
	}
}

func sortedKeys(d core.Data) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsDisabled reports whether err comes from a disabled agent.
func IsDisabled(err error) bool { return errors.Is(err, ErrDisabled) }
