package pipeline

import (
	"errors"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/agent"
)

// ErrInvalid is wrapped by every definition validation error.
var ErrInvalid = errors.New("invalid pipeline")

// Step is one entry of a pipeline. It is implemented by PlainStep and
// GatekeeperStep only.
type Step interface {
	AgentName() string
	step()
}

// PlainStep runs an agent and treats any successful result as success.
type PlainStep struct {
	Agent string
}

// AgentName implements Step.
func (s PlainStep) AgentName() string { return s.Agent }
func (PlainStep) step()               {}

// GatekeeperStep runs an agent and applies Rule to its output. A zero Rule
// defers to the agent's own decision rule.
type GatekeeperStep struct {
	Agent string
	Rule  agent.DecisionRule
}

// AgentName implements Step.
func (s GatekeeperStep) AgentName() string { return s.Agent }
func (GatekeeperStep) step()               {}

// Plain returns plain steps for names.
func Plain(names ...string) []Step {
	out := make([]Step, len(names))
	for i, n := range names {
		out[i] = PlainStep{Agent: n}
	}
	return out
}

// Gate returns a gatekeeper step using the agent's own decision rule.
func Gate(name string) Step { return GatekeeperStep{Agent: name} }

// Definition is a named pipeline.
type Definition struct {
	Name          string
	Description   string
	Steps         []Step
	StopOnFailure bool
}

// StepNames returns the agent names in order.
func (d Definition) StepNames() []string {
	out := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		out[i] = s.AgentName()
	}
	return out
}

// Gatekeepers returns the names of the gatekeeper steps in order.
func (d Definition) Gatekeepers() []string {
	var out []string
	for _, s := range d.Steps {
		if _, ok := s.(GatekeeperStep); ok {
			out = append(out, s.AgentName())
		}
	}
	return out
}

// Step returns the first step running agent name.
func (d Definition) Step(name string) (Step, bool) {
	for _, s := range d.Steps {
		if s.AgentName() == name {
			return s, true
		}
	}
	return nil, false
}

// Validate checks the definition is runnable.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalid)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalid, d.Name)
	}
	for i, s := range d.Steps {
		if s == nil || s.AgentName() == "" {
			return fmt.Errorf("%w: %s step %d has no agent", ErrInvalid, d.Name, i)
		}
	}
	return nil
}

// Adhoc builds the definition used for an explicit step list. When base is
// non-nil its failure policy is kept and steps that are gatekeepers in base
// stay gatekeepers; otherwise every step is plain and failures never stop
// the run.
func Adhoc(name string, steps []string, base *Definition) Definition {
	def := Definition{Name: name, Steps: make([]Step, 0, len(steps))}
	if base != nil {
		def.Description = base.Description
		def.StopOnFailure = base.StopOnFailure
	}
	for _, s := range steps {
		if base != nil {
			if st, ok := base.Step(s); ok {
				def.Steps = append(def.Steps, st)
				continue
			}
		}
		def.Steps = append(def.Steps, PlainStep{Agent: s})
	}
	return def
}
