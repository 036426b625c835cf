package agents

import (
	"context"
	"errors"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var uiuxConfig = agent.Config{
	Name:         UIUX,
	Description:  "Reviews a page or flow for usability and accessibility.",
	SystemPrompt: "You are a UX designer for healthcare products. Many users are elderly or have neurological conditions; you care about readability, contrast and simple flows.",
	Temperature:  0.5,
	MaxTokens:    1500,
	TaskType:     "uiux_review",
}

var uiuxPrompt = util.MustTemplate("uiux", `Review this screen of a patient platform.

Screen: {{.page}}
{{- if .audience}}
Users: {{.audience}}{{end}}
Description:
{{.description}}

`+jsonOnly+` Fields:
{"recommendations": ["..."], "accessibility_issues": ["..."], "priority": "low|medium|high"}`)

var uiuxSchema = jsonx.Schema{Fields: []string{"priority"}}

// UIUXBehavior reviews "description" of "page".
type UIUXBehavior struct{}

// NewUIUX returns the uiux_agent.
func NewUIUX(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(uiuxConfig, UIUXBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (UIUXBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	desc, err := agent.RequireAny(input, "description", "page")
	if err != nil {
		return nil, err
	}
	page := input.String("page")
	if page == "" {
		page = "unnamed screen"
	}
	return complete(ctx, env, input, uiuxPrompt, map[string]any{
		"page":        page,
		"description": desc,
		"audience":    input.String("audience"),
	}, uiuxSchema)
}

// Validate implements agent.Validator.
func (UIUXBehavior) Validate(output core.Data) error {
	if len(output.Strings("recommendations")) == 0 {
		return errors.New("no recommendations returned")
	}
	return nil
}
