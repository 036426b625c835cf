package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/metrics"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
	"github.com/burhanettinuludag/clinicmesh/task"
)

// OrchestratorName is the agent name recorded on parent pipeline tasks.
const OrchestratorName = "orchestrator"

// AdhocPipeline names runs of an explicit step list without a pipeline name.
const AdhocPipeline = "adhoc"

// ErrUnknownPipeline is reported for a pipeline name missing from the catalog.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// ErrNoDecisionRule fails a gatekeeper step whose agent declares no decision.
var ErrNoDecisionRule = errors.New("gatekeeper step has no decision rule")

// Step statuses.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepRejected  = "rejected"
	StepSkipped   = "skipped"
)

// Skip reasons.
const (
	SkipNotRegistered = "not_registered"
	SkipDisabled      = "disabled"
	SkipStopped       = "stopped"
	SkipCancelled     = "cancelled"
)

// AgentLookup resolves step names to agents. *agent.Registry implements it.
type AgentLookup interface {
	Lookup(name string) (agent.Runnable, bool)
}

// Request starts one pipeline run. Its JSON form is the async job payload.
type Request struct {
	Pipeline    string    `json:"pipeline_name"`
	Input       core.Data `json:"input_data"`
	Steps       []string  `json:"steps,omitempty"`
	TriggeredBy string    `json:"triggered_by_id,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step       string        `json:"step"`
	Status     string        `json:"status"`
	Gatekeeper bool          `json:"gatekeeper,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Result     *agent.Result `json:"result,omitempty"`
}

// Result is the outcome of a pipeline run. The engine always returns one;
// failures are described, never raised.
type Result struct {
	RunID          string            `json:"run_id"`
	Pipeline       string            `json:"pipeline"`
	Success        bool              `json:"success"`
	StepsCompleted []string          `json:"steps_completed"`
	StepsFailed    []string          `json:"steps_failed"`
	StepsSkipped   []string          `json:"steps_skipped"`
	Data           core.Data         `json:"data"`
	StepResults    []StepResult      `json:"step_results"`
	Duration       time.Duration     `json:"duration"`
	Error          string            `json:"error,omitempty"`
	ErrorDetails   map[string]string `json:"error_details,omitempty"`
	TaskID         string            `json:"task_id,omitempty"`
	TokensUsed     int               `json:"tokens_used"`
	Cost           float64           `json:"cost"`
}

// Options configures an Engine.
type Options struct {
	// Catalog defaults to pipeline.Default().
	Catalog *pipeline.Catalog
	// Tasks receives the parent pipeline record.
	Tasks     core.TaskStore
	Logger    logging.Logger
	Metrics   metrics.Recorder
	Callbacks []Callback
}

// Engine executes pipelines as strictly sequential agent chains. Runs share
// no mutable state, so one Engine serves concurrent runs.
type Engine struct {
	agents    AgentLookup
	catalog   *pipeline.Catalog
	tasks     core.TaskStore
	logger    logging.Logger
	metrics   metrics.Recorder
	callbacks *CallbackManager
}

// New creates an engine resolving steps through agents. Without a catalog
// option the built-in pipelines are used; without a task store runs are not
// recorded.
func New(agents AgentLookup, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Tasks:   task.NoopStore{},
		Logger:  logging.NoOpLogger{},
		Metrics: metrics.Nop(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Catalog == nil {
		opts.Catalog = pipeline.Default()
	}
	if opts.Tasks == nil {
		opts.Tasks = task.NoopStore{}
	}
	return &Engine{
		agents:    agents,
		catalog:   opts.Catalog,
		tasks:     opts.Tasks,
		logger:    logging.OrNoOp(opts.Logger),
		metrics:   metrics.OrNop(opts.Metrics),
		callbacks: NewCallbackManager(opts.Callbacks...),
	}
}

// Catalog returns the pipeline catalog.
func (e *Engine) Catalog() *pipeline.Catalog { return e.catalog }

// Resolve returns the definition a request would run.
func (e *Engine) Resolve(req Request) (pipeline.Definition, error) {
	if len(req.Steps) > 0 {
		name := req.Pipeline
		if name == "" {
			name = AdhocPipeline
		}
		if base, ok := e.catalog.Get(req.Pipeline); ok {
			return pipeline.Adhoc(name, req.Steps, &base), nil
		}
		return pipeline.Adhoc(name, req.Steps, nil), nil
	}
	def, ok := e.catalog.Get(req.Pipeline)
	if !ok {
		return pipeline.Definition{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPipeline, req.Pipeline, strings.Join(e.catalog.Names(), ", "))
	}
	return def, nil
}

// RunChain runs the requested pipeline to completion.
//
// The pipeline is resolved from the catalog, or built from req.Steps when
// they are given. A parent task record is created in running and every step
// runs in order against the accumulated data:
//   - an unregistered agent or a disabled one is skipped
//   - a successful step merges its output into the data
//   - a failed step writes __{step}_failed and __{step}_error sentinels and,
//     with stop_on_failure, skips the rest of the pipeline
//   - a gatekeeper rejection always stops the pipeline
//   - a cancelled ctx skips every remaining step
//
// Parameters:
//   - ctx: Cancels the run between and inside steps
//   - req: Pipeline name, input data, optional explicit steps, triggering user
//
// RunChain never returns an error value. An unknown pipeline comes back as
// a failed Result with Error set; Success is true only when no step failed.
//
// Example:
//
//	res := eng.RunChain(ctx, engine.Request{
//		Pipeline: pipeline.PublishArticle,
//		Input:    core.Data{"topic": "migren"},
//	})
//	fmt.Println(res.StepsCompleted, res.StepsFailed)
func (e *Engine) RunChain(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{
		RunID:          util.NewID(),
		Pipeline:       req.Pipeline,
		StepsCompleted: []string{},
		StepsFailed:    []string{},
		StepsSkipped:   []string{},
		Data:           req.Input.Clone(),
		ErrorDetails:   map[string]string{},
	}
	log := e.logger
	if sl, ok := log.(*logging.StructuredLogger); ok {
		log = sl.WithRun(res.RunID)
	}

	def, err := e.Resolve(req)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		log.Error("engine.pipeline.unknown", "pipeline", req.Pipeline, "error", err)
		e.metrics.ObservePipelineRun(req.Pipeline, false, res.Duration)
		return res
	}
	res.Pipeline = def.Name

	rec, err := e.tasks.Create(ctx, core.TaskSpec{
		AgentName: OrchestratorName,
		TaskType:  core.TaskTypePipeline,
		Input:     core.Data{"pipeline": def.Name, "steps": def.StepNames(), "input": req.Input},
		Status:    core.TaskRunning,
		CreatedBy: req.TriggeredBy,
	})
	if err != nil {
		log.Warn("engine.task.create_failed", "pipeline", def.Name, "error", err)
		rec = task.NoopRecord{}
	}
	res.TaskID = rec.ID()
	log.Info("engine.pipeline.start", "pipeline", def.Name, "steps", def.StepNames(), "task_id", res.TaskID)

	for i, st := range def.Steps {
		if ctx.Err() != nil {
			e.skipRemaining(ctx, &res, def.Steps[i:], SkipCancelled, i)
			res.Error = fmt.Sprintf("run cancelled: %v", ctx.Err())
			break
		}
		sr := e.runStep(ctx, log, &res, st, i, req.TriggeredBy, rec.ID())
		if (sr.Status == StepFailed || sr.Status == StepRejected) && def.StopOnFailure {
			log.Warn("engine.pipeline.stopped", "pipeline", def.Name, "step", sr.Step)
			e.skipRemaining(ctx, &res, def.Steps[i+1:], SkipStopped, i+1)
			break
		}
	}

	res.Success = len(res.StepsFailed) == 0 && res.Error == ""
	res.Duration = time.Since(start)
	if len(res.StepsFailed) > 0 && res.Error == "" {
		res.Error = "steps failed: " + strings.Join(res.StepsFailed, ", ")
	}
	if len(res.ErrorDetails) == 0 {
		res.ErrorDetails = nil
	}
	e.finish(ctx, log, rec, &res)
	return res
}

func (e *Engine) runStep(ctx context.Context, log logging.Logger, res *Result, st pipeline.Step, index int, triggeredBy, parentID string) StepResult {
	name := st.AgentName()
	gate, isGate := st.(pipeline.GatekeeperStep)
	sr := StepResult{Step: name, Gatekeeper: isGate}

	a, ok := e.lookup(name)
	if !ok {
		log.Warn("engine.step.not_registered", "step", name)
		sr.Status, sr.Reason = StepSkipped, SkipNotRegistered
		res.StepsSkipped = append(res.StepsSkipped, name)
		return e.recordStep(ctx, res, sr, index)
	}

	var rule *agent.DecisionRule
	if isGate {
		r := gate.Rule
		if r.IsZero() {
			own, has := a.Decision()
			if !has {
				ar := agent.Result{Agent: name, Err: fmt.Errorf("%w: %s", ErrNoDecisionRule, name)}
				ar.Error = ar.Err.Error()
				return e.fail(ctx, log, res, sr, &ar, index)
			}
			r = own
		}
		rule = &r
	}

	e.emit(ctx, CallbackBeforeStep, &CallbackContext{RunID: res.RunID, Pipeline: res.Pipeline, Step: name, StepIndex: index, Data: res.Data.Clone()})
	log.Debug("engine.step.start", "step", name, "index", index, "gatekeeper", isGate)

	ar := a.Run(ctx, agent.Request{
		Input:        res.Data.Clone(),
		TriggeredBy:  triggeredBy,
		ParentTaskID: parentID,
		Gate:         rule,
	})
	res.TokensUsed += ar.TokensUsed
	res.Cost += ar.Cost

	switch {
	case ar.Success:
		sr.Status, sr.Result = StepCompleted, &ar
		res.StepsCompleted = append(res.StepsCompleted, name)
		res.Data.Merge(ar.Output)
		log.Info("engine.step.completed", "step", name, "duration", ar.Duration)
		return e.recordStep(ctx, res, sr, index)
	case ar.Skipped:
		sr.Status, sr.Reason, sr.Result = StepSkipped, SkipDisabled, &ar
		res.StepsSkipped = append(res.StepsSkipped, name)
		log.Info("engine.step.disabled", "step", name)
		return e.recordStep(ctx, res, sr, index)
	default:
		return e.fail(ctx, log, res, sr, &ar, index)
	}
}

// fail records a failed step. Partial output is merged together with the
// failure sentinels so later steps can still run on it.
func (e *Engine) fail(ctx context.Context, log logging.Logger, res *Result, sr StepResult, ar *agent.Result, index int) StepResult {
	sr.Status, sr.Result = StepFailed, ar
	if ar.Rejected {
		sr.Status = StepRejected
	}
	res.StepsFailed = append(res.StepsFailed, sr.Step)
	res.ErrorDetails[sr.Step] = ar.Error
	res.Data.Merge(ar.Output)
	res.Data[core.FailedKey(sr.Step)] = true
	res.Data[core.ErrorKey(sr.Step)] = ar.Error
	log.Warn("engine.step.failed", "step", sr.Step, "rejected", ar.Rejected, "error", ar.Error)

	sr = e.recordStep(ctx, res, sr, index)
	e.emit(ctx, CallbackOnStepFailure, &CallbackContext{RunID: res.RunID, Pipeline: res.Pipeline, Step: sr.Step, StepIndex: index, Data: res.Data.Clone(), StepResult: &sr})
	return sr
}

func (e *Engine) skipRemaining(ctx context.Context, res *Result, steps []pipeline.Step, reason string, offset int) {
	for i, st := range steps {
		_, isGate := st.(pipeline.GatekeeperStep)
		res.StepsSkipped = append(res.StepsSkipped, st.AgentName())
		e.recordStep(ctx, res, StepResult{Step: st.AgentName(), Status: StepSkipped, Gatekeeper: isGate, Reason: reason}, offset+i)
	}
}

func (e *Engine) recordStep(ctx context.Context, res *Result, sr StepResult, index int) StepResult {
	res.StepResults = append(res.StepResults, sr)
	e.emit(ctx, CallbackAfterStep, &CallbackContext{RunID: res.RunID, Pipeline: res.Pipeline, Step: sr.Step, StepIndex: index, Data: res.Data.Clone(), StepResult: &sr})
	return sr
}

func (e *Engine) finish(ctx context.Context, log logging.Logger, rec core.TaskRecord, res *Result) {
	var err error
	if res.Success {
		err = rec.MarkCompleted(ctx, core.Completion{
			Output: core.Data{
				"run_id":          res.RunID,
				"steps_completed": res.StepsCompleted,
				"steps_skipped":   res.StepsSkipped,
			},
			Tokens:     res.TokensUsed,
			DurationMs: res.Duration.Milliseconds(),
			Cost:       res.Cost,
		})
	} else {
		err = rec.MarkFailed(ctx, res.Error)
	}
	if err != nil {
		log.Warn("engine.task.update_failed", "task_id", rec.ID(), "error", err)
	}

	e.metrics.ObservePipelineRun(res.Pipeline, res.Success, res.Duration)
	var runErr error
	if !res.Success {
		runErr = errors.New(res.Error)
	}
	if sl, ok := log.(*logging.StructuredLogger); ok {
		sl.LogPipelineRun(res.Pipeline, len(res.StepResults), res.Duration, res.Success, runErr)
	} else {
		log.Info("engine.pipeline.finish", "pipeline", res.Pipeline, "success", res.Success, "completed", res.StepsCompleted, "failed", res.StepsFailed, "skipped", res.StepsSkipped, "duration", res.Duration)
	}
	e.emit(ctx, CallbackAfterPipeline, &CallbackContext{RunID: res.RunID, Pipeline: res.Pipeline, Data: res.Data.Clone(), Result: res})
}

func (e *Engine) lookup(name string) (agent.Runnable, bool) {
	if e.agents == nil {
		return nil, false
	}
	return e.agents.Lookup(name)
}

func (e *Engine) emit(ctx context.Context, t CallbackType, cbCtx *CallbackContext) {
	for _, err := range e.callbacks.ExecuteCallbacks(ctx, t, cbCtx) {
		e.logger.Warn("engine.callback.failed", "type", string(t), "step", cbCtx.Step, "error", err)
	}
}
