package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/burhanettinuludag/clinicmesh/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry is a thread-safe name -> agent lookup table. Registration is
// idempotent: registering a name twice keeps the last agent.
type Registry struct {
	agents map[string]Runnable
	mu     sync.RWMutex
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents: make(map[string]Runnable),
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Runnable) error {
	if a == nil {
		return errors.New("register: nil agent")
	}
	name := a.Name()
	if name == "" {
		return errors.New("register: agent name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[name]; exists {
		r.logger.Warn("agent.registry.replaced", "agent", name)
	}
	r.agents[name] = a
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(agents ...Runnable) {
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

// Get returns the named agent or an error wrapping ErrNotFound.
func (r *Registry) Get(name string) (Runnable, error) {
	if a, ok := r.Lookup(name); ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q (registered: %s)", ErrNotFound, name, strings.Join(r.List(), ", "))
}

// Lookup returns the named agent and whether it exists.
func (r *Registry) Lookup(name string) (Runnable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Enabled returns the names of registered agents whose flag is on.
func (r *Registry) Enabled(ctx context.Context) []string {
	var out []string
	for _, n := range r.List() {
		if a, ok := r.Lookup(n); ok && a.Enabled(ctx) {
			out = append(out, n)
		}
	}
	return out
}
