package clinicmesh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/agents"
	"github.com/burhanettinuludag/clinicmesh/config"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/burhanettinuludag/clinicmesh/notify"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
	"github.com/burhanettinuludag/clinicmesh/runner"
	"github.com/burhanettinuludag/clinicmesh/sqlite"
)

func enabled(names ...string) map[string]bool {
	flags := make(map[string]bool, len(names))
	for _, n := range names {
		flags[agent.FlagKeyFor(n)] = true
	}
	return flags
}

func newMesh(t *testing.T, cfg *config.Config, optFns ...func(o *Options)) *Mesh {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) {
		o.Config = cfg
		o.Logger = logging.NoOpLogger{}
	}}, optFns...)
	m, err := New(context.Background(), fns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestNew_Defaults(t *testing.T) {
	m := newMesh(t, nil)
	assert.Equal(t, len(agents.Names()), m.Registry().Len())
	assert.ElementsMatch(t, []string{
		pipeline.PublishArticle, pipeline.FullContent, pipeline.NewsPipeline, pipeline.ContentReview,
		pipeline.TranslateOnly, pipeline.SEOAudit, pipeline.AnswerQuestion, pipeline.UIReview, pipeline.CodeTask,
	}, m.Catalog().Names())
	assert.Empty(t, m.Registry().Enabled(context.Background()), "every flag is off by default")
}

func TestAsk_NoContentNoLLM(t *testing.T) {
	cfg := config.Default()
	cfg.Flags = enabled(agents.QA)
	m := newMesh(t, cfg)

	res := m.Ask(context.Background(), "Migren ataklarını ne tetikler?", "tr", "u1")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, agents.InsufficientInfo.TR, res.Data["answer"])
	assert.Equal(t, agents.ConfidenceLow, res.Data["confidence"])
}

func TestRun_WithProviders(t *testing.T) {
	mock := model.NewMockProvider("mock", "m1").
		SetDefault(`{"meta_title": "Migren", "meta_description": "Baş ağrısı", "slug": "migren", "seo_score": 80}`)
	cfg := config.Default()
	cfg.Flags = enabled(agents.SEO, agents.InternalLink)
	reg := prometheus.NewRegistry()
	m := newMesh(t, cfg, func(o *Options) {
		o.Providers = []model.Provider{mock}
		o.Registerer = reg
	})

	res := m.Run(context.Background(), engine.Request{
		Pipeline: pipeline.SEOAudit,
		Input:    core.Data{"title": "Migren", "body": "Migren tekrarlayan baş ağrısıdır."},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{agents.SEO, agents.InternalLink}, res.StepsCompleted)
	assert.Equal(t, "migren", res.Data["slug"])
	assert.Equal(t, []any{}, res.Data["internal_links"])
	assert.Equal(t, 1, mock.CallCount())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_SQLiteAndConfiguredPipeline(t *testing.T) {
	cfg, err := config.Parse([]byte(`
storage:
  driver: sqlite
  dsn: ":memory:"
flags:
  agent.qa_agent.enabled: true
pipelines:
  - name: ask_twice
    steps: [qa_agent]
content:
  - id: d1
    title: {en: Migraine triggers}
    body: {en: Stress and sleep loss trigger migraine attacks.}
llm:
  providers:
    mock:
      response: '{"answer": "Stress and sleep loss.", "confidence": "high"}'
`))
	require.NoError(t, err)
	m := newMesh(t, cfg)

	_, ok := m.Catalog().Get("ask_twice")
	require.True(t, ok)

	res := m.Run(context.Background(), engine.Request{Pipeline: "ask_twice", Input: core.Data{"question": "What triggers migraine?", "lang": "en"}, TriggeredBy: "u2"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Stress and sleep loss.", res.Data["answer"])

	st, ok := m.Tasks().(*sqlite.Store)
	require.True(t, ok)
	parent, err := st.Get(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, parent.Status)
	kids, err := st.Children(context.Background(), res.TaskID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, agents.QA, kids[0].AgentName)
}

func TestSubmit_Async(t *testing.T) {
	cfg := config.Default()
	cfg.Flags = enabled(agents.QA)
	n := notify.NewInMemory()
	m := newMesh(t, cfg, func(o *Options) { o.Notifier = n })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	id, err := m.Submit(ctx, runner.Job{PipelineName: pipeline.AnswerQuestion, InputData: core.Data{"question": "uyku"}, TriggeredByID: "u3"})
	require.NoError(t, err)
	st, err := m.Runner().Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runner.JobCompleted, st.State)
	assert.Len(t, n.For("u3"), 1)
}

// crashOnce panics in the first run that reaches a step.
func crashOnce() engine.Callback {
	var crashed atomic.Bool
	return engine.NewFunctionCallback(engine.CallbackBeforeStep, func(context.Context, *engine.CallbackContext) error {
		if crashed.CompareAndSwap(false, true) {
			panic("worker crashed")
		}
		return nil
	})
}

func TestSubmit_CrashRetriedWithDefaultConfig(t *testing.T) {
	tests := []struct {
		name     string
		retries  *int
		state    runner.JobState
		attempts int
	}{
		{"default", nil, runner.JobCompleted, 2},
		{"disabled", func() *int { v := 0; return &v }(), runner.JobFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte("worker:\n  workers: 1\n"))
			require.NoError(t, err)
			if tt.retries != nil {
				cfg.Worker.MaxRetries = tt.retries
			}
			cfg.Flags = enabled(agents.QA)
			m := newMesh(t, cfg, func(o *Options) { o.Callbacks = []engine.Callback{crashOnce()} })

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, m.Start(ctx))
			id, err := m.Submit(ctx, runner.Job{PipelineName: pipeline.AnswerQuestion, InputData: core.Data{"question": "uyku"}})
			require.NoError(t, err)
			st, err := m.Runner().Wait(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.state, st.State)
			assert.Equal(t, tt.attempts, st.Attempts)
		})
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Primary = "missing"
	_, err := New(context.Background(), func(o *Options) { o.Config = cfg; o.Logger = logging.NoOpLogger{} })
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewProvider_Kinds(t *testing.T) {
	for _, kind := range []string{config.KindOpenAI, config.KindAnthropic, config.KindGemini, config.KindMock} {
		p, err := newProvider("p-"+kind, config.ProviderConfig{Kind: kind, APIKey: "k", Model: "m"})
		require.NoError(t, err, kind)
		assert.Equal(t, "p-"+kind, p.Info().Name)
		assert.Equal(t, "m", p.Info().Model)
	}
	_, err := newProvider("x", config.ProviderConfig{Kind: "llama"})
	assert.ErrorIs(t, err, model.ErrConfig)
	_, err = newProvider("x", config.ProviderConfig{Kind: config.KindOpenAI})
	assert.ErrorIs(t, err, model.ErrConfig)
}
