package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/burhanettinuludag/clinicmesh/agent"
)

// Spec is the YAML form of a Definition. In the config file specs are listed
// under pipelines:
//
//	pipelines:
//	  - name: review_and_translate
//	    description: Legal and quality gates, then translation
//	    steps: [legal_agent, quality_agent, translation_agent]
//	    stop_on_failure: true
//	    gatekeepers:
//	      - step: legal_agent
//	      - step: quality_agent
//	        decision_field: decision
//	        approve_when: [publish]
type Spec struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	Steps         []string   `yaml:"steps"`
	StopOnFailure bool       `yaml:"stop_on_failure"`
	Gatekeepers   []GateSpec `yaml:"gatekeepers"`
}

// GateSpec marks a step as gatekeeper. Without decision_field the agent's
// own rule applies. reject_when and approve_when are mutually exclusive; with
// neither, a false decision field rejects.
type GateSpec struct {
	Step          string   `yaml:"step"`
	DecisionField string   `yaml:"decision_field"`
	RejectWhen    []string `yaml:"reject_when"`
	ApproveWhen   []string `yaml:"approve_when"`
}

func (g GateSpec) rule() (agent.DecisionRule, error) {
	switch {
	case g.DecisionField == "":
		if len(g.RejectWhen) > 0 || len(g.ApproveWhen) > 0 {
			return agent.DecisionRule{}, fmt.Errorf("%w: gatekeeper %s sets values without decision_field", ErrInvalid, g.Step)
		}
		return agent.DecisionRule{}, nil
	case len(g.RejectWhen) > 0 && len(g.ApproveWhen) > 0:
		return agent.DecisionRule{}, fmt.Errorf("%w: gatekeeper %s sets both reject_when and approve_when", ErrInvalid, g.Step)
	case len(g.RejectWhen) > 0:
		return agent.RejectWhen(g.DecisionField, g.RejectWhen...), nil
	case len(g.ApproveWhen) > 0:
		return agent.RejectUnless(g.DecisionField, g.ApproveWhen...), nil
	default:
		return agent.RejectIfFalse(g.DecisionField), nil
	}
}

// Definition converts the spec.
func (s Spec) Definition() (Definition, error) {
	gates := make(map[string]GateSpec, len(s.Gatekeepers))
	for _, g := range s.Gatekeepers {
		gates[g.Step] = g
	}
	def := Definition{Name: s.Name, Description: s.Description, StopOnFailure: s.StopOnFailure}
	for _, name := range s.Steps {
		g, ok := gates[name]
		if !ok {
			def.Steps = append(def.Steps, PlainStep{Agent: name})
			continue
		}
		rule, err := g.rule()
		if err != nil {
			return Definition{}, err
		}
		def.Steps = append(def.Steps, GatekeeperStep{Agent: name, Rule: rule})
		delete(gates, name)
	}
	for name := range gates {
		return Definition{}, fmt.Errorf("%w: %s gatekeeper %q is not a step", ErrInvalid, s.Name, name)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseYAML decodes a list of pipeline specs.
func ParseYAML(data []byte) ([]Definition, error) {
	var specs []Spec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode pipelines: %w", err)
	}
	return FromSpecs(specs)
}

// FromSpecs converts specs, failing on the first invalid one.
func FromSpecs(specs []Spec) ([]Definition, error) {
	out := make([]Definition, 0, len(specs))
	for _, s := range specs {
		d, err := s.Definition()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
