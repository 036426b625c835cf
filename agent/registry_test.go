package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/testutil"
)

func TestRegistry(t *testing.T) {
	reg := agent.NewRegistry()
	first := testutil.NewStub("seo").Returns(core.Data{"v": 1}).Build()
	second := testutil.NewStub("seo").Returns(core.Data{"v": 2}).Build()

	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(second))
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get("seo")
	require.NoError(t, err)
	assert.Same(t, second, got)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, agent.ErrNotFound)
	assert.Contains(t, err.Error(), "seo")

	assert.Error(t, reg.Register(agent.New(agent.Config{}, nil)))
	assert.Error(t, reg.Register(nil))
}

func TestRegistryListAndEnabled(t *testing.T) {
	flags := testutil.EnabledFlags("b")
	opt := func(o *agent.Options) { o.Flags = flags }
	reg := agent.NewRegistry()
	reg.MustRegister(
		testutil.NewStub("c").Build(opt),
		testutil.NewStub("a").Build(opt),
		testutil.NewStub("b").Build(opt),
	)

	assert.Equal(t, []string{"a", "b", "c"}, reg.List())
	assert.Equal(t, []string{"b"}, reg.Enabled(context.Background()))
	assert.True(t, reg.Contains("a"))
	assert.False(t, reg.Contains("z"))
}

func TestDecisionHelpers(t *testing.T) {
	tests := []struct {
		name     string
		rule     agent.DecisionRule
		output   core.Data
		rejected bool
	}{
		{"approved bool", agent.RejectIfFalse("ok"), core.Data{"ok": true}, false},
		{"approved string", agent.RejectIfFalse("ok"), core.Data{"ok": "true"}, false},
		{"rejected bool", agent.RejectIfFalse("ok"), core.Data{"ok": false}, true},
		{"garbage", agent.RejectIfFalse("ok"), core.Data{"ok": "maybe"}, true},
		{"missing", agent.RejectIfFalse("ok"), core.Data{}, true},
		{"unless allowed", agent.RejectUnless("risk", "low", "medium"), core.Data{"risk": "LOW"}, false},
		{"unless other", agent.RejectUnless("risk", "low"), core.Data{"risk": "high"}, true},
		{"when matched", agent.RejectWhen("verdict", "reject"), core.Data{"verdict": "Reject"}, true},
		{"when not matched", agent.RejectWhen("verdict", "reject"), core.Data{"verdict": "approve"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rejected, _ := tt.rule.Evaluate(tt.output)
			assert.Equal(t, tt.rejected, rejected)
		})
	}
}

func TestRequireHelpers(t *testing.T) {
	in := core.Data{"topic": "  migren ", "empty": ""}
	v, err := agent.Require(in, "topic")
	require.NoError(t, err)
	assert.Equal(t, "migren", v)

	_, err = agent.Require(in, "empty")
	var inErr *agent.InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, "empty", inErr.Field)

	v, err = agent.RequireAny(in, "question", "topic")
	require.NoError(t, err)
	assert.Equal(t, "migren", v)

	assert.NoError(t, agent.RequireFields(core.Data{"a": "x", "b": 1}, "a", "b"))
	assert.Error(t, agent.RequireFields(core.Data{"a": " "}, "a", "b"))
}
