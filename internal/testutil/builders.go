package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/flag"
	"github.com/burhanettinuludag/clinicmesh/model"
)

// EnabledFlags returns a flag store with the default flag of every named agent switched on.
func EnabledFlags(agents ...string) *flag.MemoryStore {
	flags := make(map[string]bool, len(agents))
	for _, a := range agents {
		flags[agent.FlagKeyFor(a)] = true
	}
	return flag.NewMemoryStore(flags)
}

// NewClient wraps providers in a model.Client that never sleeps between attempts.
func NewClient(t testing.TB, providers ...model.Provider) *model.Client {
	t.Helper()
	c, err := model.NewClient(providers, func(o *model.Options) {
		o.RetryDelay = 0
		o.Timeout = 5 * time.Second
		o.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	})
	if err != nil {
		t.Fatalf("model.NewClient: %v", err)
	}
	return c
}

// StubBuilder builds agents whose behavior is scripted (chainable).
//
//	a := NewStub("content").Returns(core.Data{"title": "x"}).Build(opts...)
type StubBuilder struct {
	cfg    agent.Config
	stub   *Stub
	decide *agent.DecisionRule
}

// NewStub starts a builder for an agent called name.
func NewStub(name string) *StubBuilder {
	return &StubBuilder{cfg: agent.Config{Name: name}, stub: &Stub{}}
}

// Returns sets the output of every run. The stub does not echo its input.
func (b *StubBuilder) Returns(out core.Data) *StubBuilder {
	b.stub.output = out
	return b
}

// FailsWith makes Execute return err.
func (b *StubBuilder) FailsWith(err error) *StubBuilder {
	b.stub.err = err
	return b
}

// Panics makes Execute panic with v.
func (b *StubBuilder) Panics(v any) *StubBuilder {
	b.stub.panicValue = v
	return b
}

// Chats makes Execute send message through the Env before returning.
func (b *StubBuilder) Chats(message string) *StubBuilder {
	b.stub.chat = message
	return b
}

// Decides attaches a decision rule to the built agent.
func (b *StubBuilder) Decides(rule agent.DecisionRule) *StubBuilder {
	b.decide = &rule
	return b
}

// Stub returns the underlying behavior for inspection.
func (b *StubBuilder) Stub() *Stub { return b.stub }

// Build returns the agent.
func (b *StubBuilder) Build(optFns ...func(o *agent.Options)) *agent.Agent {
	var behavior agent.Behavior = b.stub
	if b.decide != nil {
		behavior = &decidingStub{Stub: b.stub, rule: *b.decide}
	}
	return agent.New(b.cfg, behavior, optFns...)
}

// Stub is a scripted agent.Behavior that records the inputs it receives.
type Stub struct {
	mu         sync.Mutex
	output     core.Data
	err        error
	panicValue any
	chat       string
	inputs     []core.Data
}

// Execute implements agent.Behavior.
func (s *Stub) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, input.Clone())
	s.mu.Unlock()
	if s.panicValue != nil {
		panic(s.panicValue)
	}
	if s.chat != "" {
		if _, err := env.Chat(ctx, s.chat); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.output.Clone(), nil
}

// Inputs returns copies of every input received.
func (s *Stub) Inputs() []core.Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Data(nil), s.inputs...)
}

// Calls returns how often Execute ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

type decidingStub struct {
	*Stub
	rule agent.DecisionRule
}

func (d *decidingStub) Decision() agent.DecisionRule { return d.rule }
