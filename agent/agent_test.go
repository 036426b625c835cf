package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/audit"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/flag"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/testutil"
	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/burhanettinuludag/clinicmesh/task"
)

type harness struct {
	tasks *task.InMemoryStore
	audit *audit.InMemoryStore
	llm   *model.MockProvider
	flags *flag.MemoryStore
}

func newHarness(t *testing.T, enabled ...string) (*harness, func(o *agent.Options)) {
	h := &harness{
		tasks: task.NewInMemoryStore(),
		audit: audit.NewInMemoryStore(),
		llm:   model.NewMockProvider("mock", "mock-1"),
		flags: testutil.EnabledFlags(enabled...),
	}
	client := testutil.NewClient(t, h.llm)
	return h, func(o *agent.Options) {
		o.LLM = client
		o.Flags = h.flags
		o.Tasks = h.tasks
		o.Audit = h.audit
	}
}

func TestRunSuccess(t *testing.T) {
	h, opts := newHarness(t, "content")
	h.llm.SetDefault(`{"title":"Migren"}`)

	a := agent.New(agent.Config{Name: "content", SystemPrompt: "sys"},
		agent.BehaviorFunc(func(ctx context.Context, env *agent.Env, in core.Data) (core.Data, error) {
			return env.ChatJSON(ctx, "write about "+in.String("topic"), jsonx.Schema{Fields: []string{"title"}})
		}), opts)

	res := a.Run(context.Background(), agent.Request{Input: core.Data{"topic": "migraine"}, TriggeredBy: "u1"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Migren", res.Output["title"])
	assert.Equal(t, "mock", res.Provider)
	assert.NotEmpty(t, res.TaskID)
	assert.Equal(t, agent.StatusCompleted, res.Status())

	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, snap.Status)
	assert.Equal(t, "u1", snap.CreatedBy)

	entries := h.audit.Entries(agent.AuditActionRun)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, agent.AuditResourceRun, entries[0].ResourceType)

	calls := h.llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sys", calls[0].SystemPrompt)
}

func TestRunDisabledSkipsWithoutLLM(t *testing.T) {
	h, opts := newHarness(t)
	a := testutil.NewStub("seo").Chats("hello").Returns(core.Data{"x": 1}).Build(opts)

	res := a.Run(context.Background(), agent.Request{Input: core.Data{"a": "b"}})
	assert.True(t, res.Skipped)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, agent.ErrDisabled)
	assert.True(t, agent.IsDisabled(res.Err))
	assert.Zero(t, h.llm.CallCount())

	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskSkipped, snap.Status)
	assert.Empty(t, h.audit.Entries(""))
}

func TestRunWithoutFlagStoreIsDisabled(t *testing.T) {
	a := testutil.NewStub("seo").Returns(core.Data{"x": 1}).Build()
	assert.False(t, a.Enabled(context.Background()))
	assert.True(t, a.Run(context.Background(), agent.Request{}).Skipped)
}

type failingFlags struct{}

func (failingFlags) IsEnabled(context.Context, string) (bool, error) {
	return true, errors.New("flag backend down")
}

func TestFlagErrorMeansDisabled(t *testing.T) {
	a := testutil.NewStub("seo").Returns(core.Data{"x": 1}).Build(func(o *agent.Options) { o.Flags = failingFlags{} })
	res := a.Run(context.Background(), agent.Request{})
	assert.True(t, res.Skipped)
}

func TestRunRecoversPanic(t *testing.T) {
	h, opts := newHarness(t, "boom")
	a := testutil.NewStub("boom").Panics("kaboom").Build(opts)

	res := a.Run(context.Background(), agent.Request{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, snap.Status)
}

func TestRunParseErrorIsInvalidOutput(t *testing.T) {
	_, opts := newHarness(t, "content")
	a := testutil.NewStub("content").Returns(core.Data{jsonx.KeyParseError: true, jsonx.KeyRawResponse: "??"}).Build(opts)

	res := a.Run(context.Background(), agent.Request{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, agent.ErrInvalidOutput)
	assert.False(t, res.Rejected)
}

func TestRunEmptyOutputFails(t *testing.T) {
	_, opts := newHarness(t, "content")
	res := testutil.NewStub("content").Build(opts).Run(context.Background(), agent.Request{})
	assert.ErrorIs(t, res.Err, agent.ErrInvalidOutput)
}

func TestRunBehaviorError(t *testing.T) {
	_, opts := newHarness(t, "content")
	res := testutil.NewStub("content").FailsWith(&agent.InputError{Field: "topic"}).Build(opts).
		Run(context.Background(), agent.Request{})

	var inErr *agent.InputError
	require.ErrorAs(t, res.Err, &inErr)
	assert.Equal(t, "topic", inErr.Field)
	assert.Equal(t, agent.StatusFailed, res.Status())
}

func TestGatekeeperRejection(t *testing.T) {
	h, opts := newHarness(t, "legal")
	a := testutil.NewStub("legal").
		Returns(core.Data{"legal_approved": false, "issues": []any{"claim"}}).
		Decides(agent.RejectIfFalse("legal_approved")).
		Build(opts)

	rule, ok := a.Decision()
	require.True(t, ok)

	res := a.Run(context.Background(), agent.Request{Gate: &rule})
	assert.False(t, res.Success)
	assert.True(t, res.Rejected)
	assert.ErrorIs(t, res.Err, agent.ErrRejected)
	assert.Equal(t, false, res.Output["legal_approved"])
	assert.Equal(t, agent.StatusRejected, res.Status())

	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, snap.Status)
}

func TestSameOutputOutsideGateSucceeds(t *testing.T) {
	_, opts := newHarness(t, "legal")
	a := testutil.NewStub("legal").Returns(core.Data{"legal_approved": false}).Build(opts)
	res := a.Run(context.Background(), agent.Request{})
	assert.True(t, res.Success)
}

func TestGateMissingFieldRejects(t *testing.T) {
	_, opts := newHarness(t, "legal")
	a := testutil.NewStub("legal").Returns(core.Data{"other": 1}).Build(opts)
	rule := agent.RejectIfFalse("legal_approved")
	res := a.Run(context.Background(), agent.Request{Gate: &rule})
	assert.True(t, res.Rejected)
}

func TestLLMFailureRecordsFailedTask(t *testing.T) {
	h, opts := newHarness(t, "content")
	h.llm.FailWith(model.NewError(model.ErrorTypeAuth, "bad key"))
	a := testutil.NewStub("content").Chats("hi").Returns(core.Data{"x": 1}).Build(opts)

	res := a.Run(context.Background(), agent.Request{})
	assert.False(t, res.Success)
	assert.True(t, model.IsExhausted(res.Err))
	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
}

func TestRetryCountRecorded(t *testing.T) {
	h, opts := newHarness(t, "content")
	h.llm.FailTimes(2).SetDefault("ok")
	a := testutil.NewStub("content").Chats("hi").Returns(core.Data{"x": 1}).Build(opts)

	res := a.Run(context.Background(), agent.Request{})
	require.True(t, res.Success, res.Error)
	snap, err := h.tasks.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RetryCount)
}

func TestConfigDefaults(t *testing.T) {
	a := agent.New(agent.Config{Name: "seo"}, nil)
	assert.Equal(t, "agent.seo.enabled", a.Config().FlagKey)
	assert.Equal(t, "seo", a.Config().TaskType)
	_, ok := a.Decision()
	assert.False(t, ok)
}
