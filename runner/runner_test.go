package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/internal/testutil"
	"github.com/burhanettinuludag/clinicmesh/notify"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
)

type execFunc func(ctx context.Context, req engine.Request) engine.Result

func (f execFunc) RunChain(ctx context.Context, req engine.Request) engine.Result { return f(ctx, req) }

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunnerEndToEnd(t *testing.T) {
	reg := agent.NewRegistry()
	flags := testutil.EnabledFlags("qa_agent")
	reg.MustRegister(testutil.NewStub("qa_agent").Returns(core.Data{"answer": "a"}).Build(func(o *agent.Options) { o.Flags = flags }))
	eng := engine.New(reg)

	n := notify.NewInMemory()
	r := New(eng, func(o *Options) { o.Notifier = n })
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.Submit(ctx, Job{PipelineName: pipeline.AnswerQuestion, InputData: core.Data{"question": "q"}, TriggeredByID: "user-1"})
	require.NoError(t, err)

	st, err := r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, 1, st.Attempts)
	require.NotNil(t, st.Result)
	assert.Equal(t, "a", st.Result.Data["answer"])

	sent := n.For("user-1")
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TypePipelineCompleted, sent[0].Type)
	assert.Equal(t, pipeline.AnswerQuestion, sent[0].Metadata["pipeline"])
	assert.NotEmpty(t, sent[0].Title.TR)
	assert.NotEmpty(t, sent[0].Message.EN)

	require.NoError(t, r.Shutdown(ctx))
	_, err = r.Submit(ctx, Job{PipelineName: "x"})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestFailedRunNotifiesFailure(t *testing.T) {
	n := notify.NewInMemory()
	r := New(execFunc(func(_ context.Context, req engine.Request) engine.Result {
		return engine.Result{Pipeline: req.Pipeline, StepsFailed: []string{"legal_agent"}, Error: "steps failed: legal_agent"}
	}), func(o *Options) { o.Notifier = n })
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.Submit(ctx, Job{PipelineName: "publish_article", TriggeredByID: "u"})
	require.NoError(t, err)
	st, err := r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
	assert.Equal(t, 1, st.Attempts, "a failed run is not a crash and is not retried")

	sent := n.For("u")
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TypePipelineFailed, sent[0].Type)
	assert.Contains(t, sent[0].Message.EN, "legal_agent")
	require.NoError(t, r.Shutdown(ctx))
}

func TestCrashIsRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	r := New(execFunc(func(context.Context, engine.Request) engine.Result {
		if calls.Add(1) == 1 {
			panic("worker died")
		}
		return engine.Result{Success: true}
	}))
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.Submit(ctx, Job{PipelineName: "p"})
	require.NoError(t, err)
	st, err := r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, 2, st.Attempts)
	assert.EqualValues(t, 2, calls.Load())
	require.NoError(t, r.Shutdown(ctx))
}

func TestCrashRetryIsBounded(t *testing.T) {
	var calls atomic.Int32
	r := New(execFunc(func(context.Context, engine.Request) engine.Result {
		calls.Add(1)
		panic("always")
	}))
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.Submit(ctx, Job{PipelineName: "p"})
	require.NoError(t, err)
	st, err := r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
	assert.Contains(t, st.Error, "crashed")
	assert.EqualValues(t, 2, calls.Load())
	require.NoError(t, r.Shutdown(ctx))
}

func TestQueueFull(t *testing.T) {
	r := New(execFunc(func(context.Context, engine.Request) engine.Result { return engine.Result{Success: true} }),
		func(o *Options) { o.QueueSize = 1 })
	ctx := waitCtx(t)
	_, err := r.Submit(ctx, Job{PipelineName: "a"})
	require.NoError(t, err)
	_, err = r.Submit(ctx, Job{PipelineName: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestShutdownDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	r := New(execFunc(func(_ context.Context, req engine.Request) engine.Result {
		mu.Lock()
		seen = append(seen, req.Pipeline)
		mu.Unlock()
		return engine.Result{Success: true}
	}), func(o *Options) { o.Workers = 1 })
	ctx := waitCtx(t)
	for _, p := range []string{"a", "b", "c"} {
		_, err := r.Submit(ctx, Job{PipelineName: p})
		require.NoError(t, err)
	}
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestSubmitPayloadAndUnknownJob(t *testing.T) {
	var got engine.Request
	r := New(execFunc(func(_ context.Context, req engine.Request) engine.Result {
		got = req
		return engine.Result{Success: true}
	}))
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.SubmitPayload(ctx, []byte(`{"pipeline_name":"publish_article","input_data":{"topic":"migren"},"steps":["content_agent"],"triggered_by_id":"7"}`))
	require.NoError(t, err)
	_, err = r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "publish_article", got.Pipeline)
	assert.Equal(t, "migren", got.Input["topic"])
	assert.Equal(t, []string{"content_agent"}, got.Steps)
	assert.Equal(t, "7", got.TriggeredBy)

	_, err = r.Status("missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
	_, err = r.Wait(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.ErrorIs(t, r.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, r.Shutdown(ctx))
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	r := New(execFunc(func(ctx context.Context, _ engine.Request) engine.Result {
		close(started)
		<-ctx.Done()
		return engine.Result{Error: ctx.Err().Error()}
	}))
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	id, err := r.Submit(ctx, Job{PipelineName: "translate_only"})
	require.NoError(t, err)
	<-started
	require.NoError(t, r.Cancel(id))

	st, err := r.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
	assert.Contains(t, st.Error, "canceled")
	assert.Error(t, r.Cancel(id))
	require.NoError(t, r.Shutdown(ctx))
}

func TestFinishedJobsAreBounded(t *testing.T) {
	r := New(execFunc(func(context.Context, engine.Request) engine.Result {
		return engine.Result{Success: true}
	}), func(o *Options) {
		o.Workers = 1
		o.KeepFinished = 2
	})
	ctx := waitCtx(t)
	require.NoError(t, r.Start(ctx))

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id, err := r.Submit(ctx, Job{ID: name, PipelineName: "translate_only"})
		require.NoError(t, err)
		_, err = r.Wait(ctx, id)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := r.Status(ids[0])
	assert.ErrorIs(t, err, ErrUnknownJob)
	for _, id := range ids[1:] {
		st, err := r.Status(id)
		require.NoError(t, err)
		assert.Equal(t, JobCompleted, st.State)
	}
	require.NoError(t, r.Shutdown(ctx))
}
