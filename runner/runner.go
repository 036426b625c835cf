package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/metrics"
	"github.com/burhanettinuludag/clinicmesh/notify"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("job queue full")
	// ErrStopped is returned once Shutdown has begun.
	ErrStopped = errors.New("runner stopped")
	// ErrUnknownJob is returned for ids the runner never accepted.
	ErrUnknownJob = errors.New("unknown job")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("runner already started")
)

// DefaultKeepFinished is how many finished jobs stay queryable by default.
const DefaultKeepFinished = 1000

// Job events counted by metrics.Recorder.IncJob.
const (
	EventSubmitted = "submitted"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventRetried   = "retried"
)

// Job is the queue message. Only ids travel; the triggering user is
// referenced by TriggeredByID.
type Job struct {
	ID            string    `json:"id"`
	PipelineName  string    `json:"pipeline_name"`
	InputData     core.Data `json:"input_data"`
	Steps         []string  `json:"steps,omitempty"`
	TriggeredByID string    `json:"triggered_by_id,omitempty"`
}

// Request converts the job to an engine request.
func (j Job) Request() engine.Request {
	return engine.Request{Pipeline: j.PipelineName, Input: j.InputData, Steps: j.Steps, TriggeredBy: j.TriggeredByID}
}

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Done reports whether the job reached a final state.
func (s JobState) Done() bool { return s == JobCompleted || s == JobFailed }

// JobStatus is a snapshot of one job.
type JobStatus struct {
	ID          string         `json:"id"`
	Pipeline    string         `json:"pipeline"`
	State       JobState       `json:"state"`
	Attempts    int            `json:"attempts"`
	Result      *engine.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	FinishedAt  time.Time      `json:"finished_at,omitzero"`
}

// Executor runs one pipeline request. *engine.Engine implements it.
type Executor interface {
	RunChain(ctx context.Context, req engine.Request) engine.Result
}

// Options configures a Runner.
type Options struct {
	// Workers is the number of concurrent jobs.
	Workers int
	// QueueSize bounds the number of waiting jobs.
	QueueSize int
	// JobTimeout bounds one execution attempt. Zero disables it.
	JobTimeout time.Duration
	// MaxRetries is how often a crashed (panicking) execution is re-queued.
	MaxRetries int
	// KeepFinished bounds how many finished jobs Status and Wait still know
	// about. The oldest finished job is forgotten first.
	KeepFinished int
	Notifier     core.Notifier
	Logger       logging.Logger
	Metrics      metrics.Recorder
}

type envelope struct {
	id      string
	payload []byte
}

type jobEntry struct {
	status JobStatus
	done   chan struct{}
}

// Runner is an in-process task queue. Every job is picked up by exactly one
// worker; jobs are stored encoded so payloads are always serializable.
// Public methods are safe for concurrent use.
type Runner struct {
	exec Executor
	opts Options

	queue    chan envelope
	mu       sync.Mutex
	jobs     map[string]*jobEntry
	finished []string // oldest first
	active   map[string]context.CancelFunc
	started  bool
	closed   bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Runner for exec. Nothing runs until Start.
func New(exec Executor, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Workers:    2,
		QueueSize:  64,
		JobTimeout: 10 * time.Minute,
		MaxRetries: 1,
		Logger:     logging.NoOpLogger{},
		Metrics:    metrics.Nop(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.KeepFinished < 1 {
		opts.KeepFinished = DefaultKeepFinished
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Metrics = metrics.OrNop(opts.Metrics)

	return &Runner{
		exec:   exec,
		opts:   opts,
		queue:  make(chan envelope, opts.QueueSize),
		jobs:   make(map[string]*jobEntry),
		active: make(map[string]context.CancelFunc),
	}
}

// Start launches the workers. They stop when ctx is cancelled or after
// Shutdown has drained the queue.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStopped
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	r.group = g
	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			r.work(gctx, i)
			return nil
		})
	}
	r.opts.Logger.Info("runner.started", "workers", r.opts.Workers, "queue_size", r.opts.QueueSize)
	return nil
}

// Submit enqueues job and returns its id. A missing id is generated.
//
// The job is JSON-encoded before it is queued, so a payload that cannot be
// serialized is rejected here rather than by a worker. Submit never blocks:
// a full queue fails with ErrQueueFull and a runner that is shutting down
// fails with ErrStopped. Jobs may be submitted before Start; they run once
// the workers are up.
//
// Example:
//
//	id, err := r.Submit(ctx, runner.Job{
//		PipelineName:  pipeline.PublishArticle,
//		InputData:     core.Data{"topic": "migren"},
//		TriggeredByID: userID,
//	})
//	if errors.Is(err, runner.ErrQueueFull) {
//		// back off and retry
//	}
//	status, err := r.Wait(ctx, id)
func (r *Runner) Submit(_ context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = util.NewID()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrStopped
	}
	if _, dup := r.jobs[job.ID]; dup {
		return "", fmt.Errorf("job %s already submitted", job.ID)
	}
	r.jobs[job.ID] = &jobEntry{
		status: JobStatus{ID: job.ID, Pipeline: job.PipelineName, State: JobQueued, SubmittedAt: time.Now()},
		done:   make(chan struct{}),
	}
	select {
	case r.queue <- envelope{id: job.ID, payload: payload}:
	default:
		delete(r.jobs, job.ID)
		return "", ErrQueueFull
	}
	r.opts.Metrics.IncJob(EventSubmitted)
	r.opts.Logger.Info("runner.job.submitted", "job_id", job.ID, "pipeline", job.PipelineName)
	return job.ID, nil
}

// SubmitPayload enqueues an already encoded job message.
func (r *Runner) SubmitPayload(ctx context.Context, payload []byte) (string, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return "", fmt.Errorf("decode job: %w", err)
	}
	return r.Submit(ctx, job)
}

// Status returns a snapshot of the job.
func (r *Runner) Status(id string) (JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return e.status, nil
}

// Wait blocks until the job is done or ctx ends.
func (r *Runner) Wait(ctx context.Context, id string) (JobStatus, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	select {
	case <-e.done:
		return r.Status(id)
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	}
}

// Cancel cancels a running job. The engine stops before its next step.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s is not running", id)
	}
	cancel()
	return nil
}

// Shutdown stops accepting jobs, lets the workers drain the queue and waits
// for them. When ctx ends first the workers are cancelled and ctx.Err() is
// returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	started, g, cancel := r.started, r.group, r.cancel
	r.mu.Unlock()
	if !started {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		cancel()
		r.opts.Logger.Info("runner.stopped")
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (r *Runner) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-r.queue:
			if !ok {
				return
			}
			r.process(ctx, worker, env)
		}
	}
}

func (r *Runner) process(ctx context.Context, worker int, env envelope) {
	log := r.opts.Logger
	var job Job
	if err := json.Unmarshal(env.payload, &job); err != nil {
		r.finish(ctx, env.id, Job{ID: env.id}, nil, fmt.Errorf("decode job: %w", err))
		return
	}

	attempt := r.markRunning(job.ID)
	log.Info("runner.job.start", "job_id", job.ID, "pipeline", job.PipelineName, "worker", worker, "attempt", attempt)

	res, crash := r.execute(ctx, job)
	if crash == nil {
		r.finish(ctx, job.ID, job, &res, nil)
		return
	}

	log.Error("runner.job.crashed", "job_id", job.ID, "attempt", attempt, "error", crash)
	if attempt <= r.opts.MaxRetries && r.requeue(env) {
		r.opts.Metrics.IncJob(EventRetried)
		log.Warn("runner.job.retry", "job_id", job.ID, "attempt", attempt, "max_retries", r.opts.MaxRetries)
		return
	}
	r.finish(ctx, job.ID, job, nil, crash)
}

// execute runs one attempt. A panic anywhere below RunChain is a crash.
func (r *Runner) execute(ctx context.Context, job Job) (res engine.Result, crash error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if r.opts.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.opts.JobTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	r.mu.Lock()
	r.active[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	defer func() {
		if p := recover(); p != nil {
			r.opts.Logger.Error("runner.job.panic", "job_id", job.ID, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			crash = fmt.Errorf("job %s crashed: %v", job.ID, p)
		}
	}()
	return r.exec.RunChain(runCtx, job.Request()), nil
}

func (r *Runner) requeue(env envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- env:
		if e, ok := r.jobs[env.id]; ok {
			e.status.State = JobQueued
		}
		return true
	default:
		return false
	}
}

func (r *Runner) markRunning(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return 1
	}
	e.status.State = JobRunning
	e.status.Attempts++
	e.status.StartedAt = time.Now()
	return e.status.Attempts
}

func (r *Runner) finish(ctx context.Context, id string, job Job, res *engine.Result, err error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	if ok {
		e.status.FinishedAt = time.Now()
		e.status.Result = res
		switch {
		case err != nil:
			e.status.State = JobFailed
			e.status.Error = err.Error()
		case res.Success:
			e.status.State = JobCompleted
		default:
			e.status.State = JobFailed
			e.status.Error = res.Error
		}
		close(e.done)
		r.retain(id)
	}
	r.mu.Unlock()

	success := err == nil && res != nil && res.Success
	if success {
		r.opts.Metrics.IncJob(EventCompleted)
	} else {
		r.opts.Metrics.IncJob(EventFailed)
	}
	r.opts.Logger.Info("runner.job.finish", "job_id", id, "success", success)
	r.notify(ctx, job, res, err)
}

// retain records id as finished and forgets the oldest finished jobs beyond
// KeepFinished. r.mu must be held.
func (r *Runner) retain(id string) {
	r.finished = append(r.finished, id)
	for len(r.finished) > r.opts.KeepFinished {
		delete(r.jobs, r.finished[0])
		r.finished[0] = ""
		r.finished = r.finished[1:]
	}
}

func (r *Runner) notify(ctx context.Context, job Job, res *engine.Result, err error) {
	if r.opts.Notifier == nil || job.TriggeredByID == "" {
		return
	}
	msg := completionNotice(job, res, err)
	if nerr := r.opts.Notifier.Notify(context.WithoutCancel(ctx), msg); nerr != nil {
		r.opts.Logger.Warn("runner.notify.failed", "job_id", job.ID, "recipient", job.TriggeredByID, "error", nerr)
	}
}

func completionNotice(job Job, res *engine.Result, err error) core.Notification {
	meta := core.Data{"pipeline": job.PipelineName, "job_id": job.ID}
	if res != nil {
		meta["run_id"] = res.RunID
		meta["steps_completed"] = res.StepsCompleted
		meta["steps_failed"] = res.StepsFailed
		meta["steps_skipped"] = res.StepsSkipped
	}
	n := core.Notification{RecipientID: job.TriggeredByID, Metadata: meta}

	if err == nil && res != nil && res.Success {
		n.Type = notify.TypePipelineCompleted
		n.Title = core.Localized{TR: "İşlem tamamlandı", EN: "Pipeline completed"}
		n.Message = core.Localized{
			TR: fmt.Sprintf("%s işlemi başarıyla tamamlandı.", job.PipelineName),
			EN: fmt.Sprintf("Pipeline %s completed successfully.", job.PipelineName),
		}
		return n
	}

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case res != nil && len(res.StepsFailed) > 0:
		reason = strings.Join(res.StepsFailed, ", ")
	case res != nil:
		reason = res.Error
	}
	n.Type = notify.TypePipelineFailed
	n.Title = core.Localized{TR: "İşlem başarısız", EN: "Pipeline failed"}
	n.Message = core.Localized{
		TR: fmt.Sprintf("%s işlemi başarısız oldu: %s", job.PipelineName, reason),
		EN: fmt.Sprintf("Pipeline %s failed: %s", job.PipelineName, reason),
	}
	return n
}
