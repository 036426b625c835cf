// Package clinicmesh wires the content orchestration stack into one value.
//
// A Mesh is built from a config.Config: it opens the configured storage
// (in-memory or SQLite), puts a TTL cache in front of the feature flags,
// builds the LLM client from the provider chain, registers the built-in
// agents, extends the pipeline catalog with configured definitions and
// starts an Engine plus an async Runner on top:
//
//	cfg, _ := config.Load("clinicmesh.yaml")
//	m, err := clinicmesh.New(ctx, func(o *clinicmesh.Options) { o.Config = cfg })
//	if err != nil { ... }
//	defer m.Close(ctx)
//	res := m.Run(ctx, engine.Request{Pipeline: "publish_article", Input: core.Data{"topic": "migren"}})
package clinicmesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/agents"
	"github.com/burhanettinuludag/clinicmesh/audit"
	"github.com/burhanettinuludag/clinicmesh/config"
	"github.com/burhanettinuludag/clinicmesh/content"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/flag"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/metrics"
	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/burhanettinuludag/clinicmesh/notify"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
	"github.com/burhanettinuludag/clinicmesh/runner"
	"github.com/burhanettinuludag/clinicmesh/sqlite"
	"github.com/burhanettinuludag/clinicmesh/task"
)

// Options configures a Mesh.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Logger defaults to a slog logger built from Config.Logging.
	Logger logging.Logger
	// Registerer enables Prometheus metrics when set.
	Registerer prometheus.Registerer
	// Providers replaces the providers built from Config.LLM. Names still
	// resolve through Config.LLM.Primary and Fallbacks when those are set.
	Providers []model.Provider
	// Notifier defaults to a log notifier.
	Notifier core.Notifier
	// Callbacks observe every pipeline run.
	Callbacks []engine.Callback
}

// Mesh is the assembled application.
type Mesh struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics metrics.Recorder

	tasks   core.TaskStore
	audit   core.AuditLogger
	flags   core.FlagStore
	content core.ContentSearcher
	db      *sqlite.Store

	llm      *model.Client
	registry *agent.Registry
	catalog  *pipeline.Catalog
	engine   *engine.Engine
	runner   *runner.Runner
}

// New assembles a Mesh. Configuration errors (unknown providers, missing
// keys, invalid pipelines) are returned and are never retried.
//
// Parameters:
//   - ctx: Used while opening storage and seeding flags and documents
//   - optFns: Config, logger, Prometheus registerer, provider overrides,
//     notifier and engine callbacks; an unset Config means config.Default()
//
// The returned Mesh owns its storage. Call Close when done, also when Start
// was never called.
//
// Example:
//
//	cfg, err := config.Load("clinicmesh.yaml")
//	if err != nil {
//		return err
//	}
//	mesh, err := clinicmesh.New(ctx, func(o *clinicmesh.Options) { o.Config = cfg })
//	if err != nil {
//		return err
//	}
//	defer mesh.Close(context.Background())
//	res := mesh.Ask(ctx, "Migren nasıl tedavi edilir?", "tr", "42")
func New(ctx context.Context, optFns ...func(o *Options)) (*Mesh, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(cfg.LogLevel(), cfg.Logging.Format, cfg.Logging.AddSource).WithComponent("clinicmesh")
	}
	rec := metrics.Nop()
	if opts.Registerer != nil {
		rec = metrics.NewPrometheusRecorder(opts.Registerer)
	}

	m := &Mesh{cfg: cfg, logger: logger, metrics: rec}
	if err := m.openStorage(ctx); err != nil {
		return nil, err
	}

	providers := opts.Providers
	if providers == nil {
		var err error
		if providers, err = buildProviders(cfg); err != nil {
			m.closeStorage()
			return nil, err
		}
	}
	if len(providers) > 0 {
		client, err := model.NewClient(providers, func(o *model.Options) {
			o.Primary = cfg.LLM.Primary
			o.Fallbacks = cfg.LLM.Fallbacks
			o.MaxRetries = cfg.LLM.MaxRetries
			o.RetryDelay = cfg.LLM.RetryDelay
			o.Timeout = cfg.LLM.Timeout
			o.Logger = logger
			o.Metrics = rec
		})
		if err != nil {
			m.closeStorage()
			return nil, err
		}
		m.llm = client
	} else {
		logger.Warn("clinicmesh.llm.unconfigured")
	}

	m.registry = agent.NewRegistry(func(o *agent.RegistryOptions) { o.Logger = logger })
	err := agents.RegisterAll(m.registry, func(o *agent.Options) {
		if m.llm != nil {
			o.LLM = m.llm
		}
		o.Flags = m.flags
		o.Tasks = m.tasks
		o.Audit = m.audit
		o.Content = m.content
		o.Logger = logger
		o.Metrics = rec
	})
	if err != nil {
		m.closeStorage()
		return nil, err
	}

	m.catalog = pipeline.Default()
	defs, err := pipeline.FromSpecs(cfg.Pipelines)
	if err != nil {
		m.closeStorage()
		return nil, err
	}
	for _, d := range defs {
		if err := m.catalog.Add(d); err != nil {
			m.closeStorage()
			return nil, err
		}
	}

	m.engine = engine.New(m.registry, func(o *engine.Options) {
		o.Catalog = m.catalog
		o.Tasks = m.tasks
		o.Logger = logger
		o.Metrics = rec
		o.Callbacks = opts.Callbacks
	})

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger, core.LangTR)
	}
	m.runner = runner.New(m.engine, func(o *runner.Options) {
		o.Workers = cfg.Worker.Workers
		o.QueueSize = cfg.Worker.QueueSize
		o.JobTimeout = cfg.Worker.JobTimeout
		o.KeepFinished = cfg.Worker.KeepFinished
		if cfg.Worker.MaxRetries != nil {
			o.MaxRetries = *cfg.Worker.MaxRetries
		}
		o.Notifier = notifier
		o.Logger = logger
		o.Metrics = rec
	})

	logger.Info("clinicmesh.ready",
		"storage", cfg.Storage.Driver,
		"providers", len(providers),
		"agents", m.registry.Len(),
		"pipelines", len(m.catalog.Names()))
	return m, nil
}

func (m *Mesh) openStorage(ctx context.Context) error {
	switch m.cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(m.cfg.Storage.DSN, func(o *sqlite.Options) { o.Logger = m.logger })
		if err != nil {
			return err
		}
		if err := st.SetFlags(ctx, m.cfg.Flags); err != nil {
			_ = st.Close()
			return err
		}
		for _, d := range m.cfg.Content {
			if _, err := st.PutDocument(ctx, d); err != nil {
				_ = st.Close()
				return err
			}
		}
		m.db = st
		m.tasks, m.audit, m.content = st, st, st
		m.flags = flag.NewCachedStore(st, 0, m.cfg.FlagCacheTTL)
	default:
		m.tasks = task.NewInMemoryStore()
		m.audit = audit.Multi{audit.NewInMemoryStore(), audit.NewLogStore(m.logger)}
		m.content = content.NewInMemoryStore(m.cfg.Content...)
		m.flags = flag.NewCachedStore(flag.NewMemoryStore(m.cfg.Flags), 0, m.cfg.FlagCacheTTL)
	}
	return nil
}

func (m *Mesh) closeStorage() {
	if m.db != nil {
		_ = m.db.Close()
	}
}

// Run executes a pipeline synchronously.
func (m *Mesh) Run(ctx context.Context, req engine.Request) engine.Result {
	return m.engine.RunChain(ctx, req)
}

// Ask runs the answer_question pipeline for question in lang (tr or en).
func (m *Mesh) Ask(ctx context.Context, question, lang, userID string) engine.Result {
	return m.Run(ctx, engine.Request{
		Pipeline:    pipeline.AnswerQuestion,
		Input:       core.Data{"question": question, "lang": core.NormalizeLang(lang)},
		TriggeredBy: userID,
	})
}

// Start launches the async workers.
func (m *Mesh) Start(ctx context.Context) error { return m.runner.Start(ctx) }

// Submit queues a pipeline run on the async runner.
func (m *Mesh) Submit(ctx context.Context, job runner.Job) (string, error) {
	return m.runner.Submit(ctx, job)
}

// Close drains the runner and closes storage.
func (m *Mesh) Close(ctx context.Context) error {
	err := m.runner.Shutdown(ctx)
	if m.db != nil {
		err = errors.Join(err, m.db.Close())
	}
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Config returns the configuration the mesh was built from.
func (m *Mesh) Config() *config.Config { return m.cfg }

// Registry returns the agent registry.
func (m *Mesh) Registry() *agent.Registry { return m.registry }

// Catalog returns the pipeline catalog.
func (m *Mesh) Catalog() *pipeline.Catalog { return m.catalog }

// Engine returns the orchestrator.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Runner returns the async runner.
func (m *Mesh) Runner() *runner.Runner { return m.runner }

// Tasks returns the task store.
func (m *Mesh) Tasks() core.TaskStore { return m.tasks }

// Audit returns the audit logger.
func (m *Mesh) Audit() core.AuditLogger { return m.audit }

// Content returns the content searcher.
func (m *Mesh) Content() core.ContentSearcher { return m.content }

// Logger returns the process logger.
func (m *Mesh) Logger() logging.Logger { return m.logger }
