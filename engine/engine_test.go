package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/agents"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/testutil"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
	"github.com/burhanettinuludag/clinicmesh/task"
)

type fixture struct {
	reg   *agent.Registry
	tasks *task.InMemoryStore
	stubs map[string]*testutil.StubBuilder
	opt   func(o *agent.Options)
}

func newFixture(enabled ...string) *fixture {
	f := &fixture{
		reg:   agent.NewRegistry(),
		tasks: task.NewInMemoryStore(),
		stubs: map[string]*testutil.StubBuilder{},
	}
	flags := testutil.EnabledFlags(enabled...)
	f.opt = func(o *agent.Options) {
		o.Flags = flags
		o.Tasks = f.tasks
	}
	return f
}

func (f *fixture) add(b *testutil.StubBuilder) *testutil.Stub {
	a := b.Build(f.opt)
	f.reg.MustRegister(a)
	return b.Stub()
}

func threeSteps(stop bool) *pipeline.Catalog {
	c, err := pipeline.NewCatalog(pipeline.Definition{
		Name:          "three",
		Steps:         pipeline.Plain("step1", "step2", "step3"),
		StopOnFailure: stop,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func TestPartialFailurePropagation(t *testing.T) {
	f := newFixture("step1", "step2", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	f.add(testutil.NewStub("step2").Returns(core.Data{jsonx.KeyParseError: true, "partial": "p"}))
	s3 := f.add(testutil.NewStub("step3").Returns(core.Data{"c": 3}))

	eng := engine.New(f.reg, func(o *engine.Options) { o.Catalog = threeSteps(false) })
	res := eng.RunChain(context.Background(), engine.Request{Pipeline: "three", Input: core.Data{"seed": "x"}})

	assert.False(t, res.Success)
	assert.Equal(t, []string{"step1", "step3"}, res.StepsCompleted)
	assert.Equal(t, []string{"step2"}, res.StepsFailed)
	assert.Empty(t, res.StepsSkipped)
	assert.Equal(t, 1, res.Data["a"])
	assert.Equal(t, 3, res.Data["c"])
	assert.Equal(t, "p", res.Data["partial"])
	assert.Equal(t, true, res.Data["__step2_failed"])
	assert.NotEmpty(t, res.Data["__step2_error"])
	assert.Contains(t, res.ErrorDetails, "step2")

	require.Equal(t, 1, s3.Calls())
	assert.Equal(t, true, s3.Inputs()[0]["__step2_failed"])
}

func TestStopOnFailure(t *testing.T) {
	f := newFixture("step1", "step2", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	f.add(testutil.NewStub("step2").FailsWith(errors.New("boom")))
	s3 := f.add(testutil.NewStub("step3").Returns(core.Data{"c": 3}))

	eng := engine.New(f.reg, func(o *engine.Options) {
		o.Catalog = threeSteps(true)
		o.Tasks = f.tasks
	})
	res := eng.RunChain(context.Background(), engine.Request{Pipeline: "three"})

	assert.False(t, res.Success)
	assert.Equal(t, []string{"step3"}, res.StepsSkipped)
	assert.Zero(t, s3.Calls())
	require.Len(t, res.StepResults, 3)
	assert.Equal(t, engine.SkipStopped, res.StepResults[2].Reason)

	parent, err := f.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, parent.Status)
	assert.Equal(t, core.TaskTypePipeline, parent.TaskType)
	assert.Contains(t, parent.Error, "step2")

	children, err := f.tasks.Children(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestPublishArticleLegalRejection(t *testing.T) {
	f := newFixture(agents.Content, agents.SEO, agents.Legal, agents.Translation)
	f.add(testutil.NewStub(agents.Content).Returns(core.Data{"title": "T", "body": "B"}))
	f.add(testutil.NewStub(agents.SEO).Returns(core.Data{"meta_title": "M"}))
	f.add(testutil.NewStub(agents.Legal).Returns(core.Data{"legal_approved": false}).Decides(agent.RejectIfFalse("legal_approved")))
	tr := f.add(testutil.NewStub(agents.Translation).Returns(core.Data{"body_en": "E"}))

	res := engine.New(f.reg).RunChain(context.Background(), engine.Request{Pipeline: pipeline.PublishArticle, Input: core.Data{"topic": "migraine"}})

	assert.False(t, res.Success)
	assert.Equal(t, []string{agents.Content, agents.SEO}, res.StepsCompleted)
	assert.Equal(t, []string{agents.Legal}, res.StepsFailed)
	assert.Equal(t, []string{agents.Translation}, res.StepsSkipped)
	assert.Zero(t, tr.Calls())
	assert.Equal(t, engine.StepRejected, res.StepResults[2].Status)
	assert.True(t, res.StepResults[2].Gatekeeper)
	assert.Equal(t, false, res.Data["legal_approved"])
}

func TestNonGatekeeperRejectionPayloadSucceeds(t *testing.T) {
	f := newFixture(agents.Legal, agents.Quality, agents.Editorial)
	f.add(testutil.NewStub(agents.Legal).Returns(core.Data{"legal_approved": false}).Decides(agent.RejectIfFalse("legal_approved")))
	f.add(testutil.NewStub(agents.Quality).Returns(core.Data{"decision": "publish"}))
	f.add(testutil.NewStub(agents.Editorial).Returns(core.Data{"editorial_decision": "approve"}))

	res := engine.New(f.reg).RunChain(context.Background(), engine.Request{Pipeline: pipeline.ContentReview})
	assert.True(t, res.Success, res.Error)
	assert.Len(t, res.StepsCompleted, 3)
}

func TestUnregisteredStepIsSkipped(t *testing.T) {
	f := newFixture("step1", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	f.add(testutil.NewStub("step3").Returns(core.Data{"c": 3}))

	res := engine.New(f.reg, func(o *engine.Options) { o.Catalog = threeSteps(true) }).
		RunChain(context.Background(), engine.Request{Pipeline: "three"})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"step2"}, res.StepsSkipped)
	assert.Equal(t, engine.SkipNotRegistered, res.StepResults[1].Reason)
	assert.Equal(t, []string{"step1", "step3"}, res.StepsCompleted)
}

func TestDisabledStepIsSkippedWithoutOutput(t *testing.T) {
	f := newFixture("step1", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	s2 := f.add(testutil.NewStub("step2").Returns(core.Data{"b": 2}))
	f.add(testutil.NewStub("step3").Returns(core.Data{"c": 3}))

	res := engine.New(f.reg, func(o *engine.Options) { o.Catalog = threeSteps(true) }).
		RunChain(context.Background(), engine.Request{Pipeline: "three"})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"step2"}, res.StepsSkipped)
	assert.Equal(t, engine.SkipDisabled, res.StepResults[1].Reason)
	assert.False(t, res.Data.Has("b"))
	assert.Zero(t, s2.Calls())
}

func TestUnknownPipeline(t *testing.T) {
	res := engine.New(agent.NewRegistry()).RunChain(context.Background(), engine.Request{Pipeline: "nope"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown pipeline")
	assert.Empty(t, res.StepResults)
}

func TestExplicitSteps(t *testing.T) {
	f := newFixture(agents.Legal, agents.Translation)
	f.add(testutil.NewStub(agents.Legal).Returns(core.Data{"legal_approved": false}).Decides(agent.RejectIfFalse("legal_approved")))
	tr := f.add(testutil.NewStub(agents.Translation).Returns(core.Data{"body_en": "E"}))
	eng := engine.New(f.reg)

	t.Run("known pipeline keeps gatekeepers and policy", func(t *testing.T) {
		res := eng.RunChain(context.Background(), engine.Request{
			Pipeline: pipeline.PublishArticle,
			Steps:    []string{agents.Legal, agents.Translation},
		})
		assert.False(t, res.Success)
		assert.Equal(t, []string{agents.Translation}, res.StepsSkipped)
	})

	t.Run("unnamed list runs plain steps", func(t *testing.T) {
		res := eng.RunChain(context.Background(), engine.Request{Steps: []string{agents.Legal, agents.Translation}})
		assert.True(t, res.Success, res.Error)
		assert.Equal(t, engine.AdhocPipeline, res.Pipeline)
		assert.Equal(t, 1, tr.Calls())
	})
}

func TestGatekeeperWithoutDecisionFails(t *testing.T) {
	f := newFixture("plain")
	s := f.add(testutil.NewStub("plain").Returns(core.Data{"x": 1}))
	c, err := pipeline.NewCatalog(pipeline.Definition{Name: "gated", Steps: []pipeline.Step{pipeline.Gate("plain")}})
	require.NoError(t, err)

	res := engine.New(f.reg, func(o *engine.Options) { o.Catalog = c }).RunChain(context.Background(), engine.Request{Pipeline: "gated"})
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorDetails["plain"], "no decision rule")
	assert.Zero(t, s.Calls())
}

func TestCallbacks(t *testing.T) {
	f := newFixture("step1", "step2", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	f.add(testutil.NewStub("step2").FailsWith(errors.New("boom")))
	f.add(testutil.NewStub("step3").Returns(core.Data{"c": 3}))

	var after, failures []string
	var final *engine.Result
	eng := engine.New(f.reg, func(o *engine.Options) {
		o.Catalog = threeSteps(false)
		o.Callbacks = []engine.Callback{
			engine.NewFunctionCallback(engine.CallbackAfterStep, func(_ context.Context, c *engine.CallbackContext) error {
				after = append(after, c.Step+":"+c.StepResult.Status)
				return errors.New("ignored")
			}),
			engine.NewFunctionCallback(engine.CallbackOnStepFailure, func(_ context.Context, c *engine.CallbackContext) error {
				failures = append(failures, c.Step)
				return nil
			}),
			engine.NewFunctionCallback(engine.CallbackAfterPipeline, func(_ context.Context, c *engine.CallbackContext) error {
				final = c.Result
				return nil
			}),
		}
	})
	res := eng.RunChain(context.Background(), engine.Request{Pipeline: "three"})

	assert.Equal(t, []string{"step1:completed", "step2:failed", "step3:completed"}, after)
	assert.Equal(t, []string{"step2"}, failures)
	require.NotNil(t, final)
	assert.Equal(t, res.RunID, final.RunID)
}

func TestCancelledContextSkipsRemaining(t *testing.T) {
	f := newFixture("step1", "step2", "step3")
	f.add(testutil.NewStub("step1").Returns(core.Data{"a": 1}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := engine.New(f.reg, func(o *engine.Options) { o.Catalog = threeSteps(false) }).RunChain(ctx, engine.Request{Pipeline: "three"})
	assert.False(t, res.Success)
	assert.Equal(t, []string{"step1", "step2", "step3"}, res.StepsSkipped)
}
