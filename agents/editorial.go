package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// Editorial decisions.
const (
	EditorialApprove = "approve"
	EditorialRevise  = "revise"
	EditorialReject  = "reject"
)

var editorialConfig = agent.Config{
	Name:         Editorial,
	Description:  "Makes the editorial call on a news item or article.",
	SystemPrompt: "You are the editor in chief of a health news desk. You check newsworthiness, balance, sourcing and tone.",
	Temperature:  0.2,
	MaxTokens:    1000,
	TaskType:     "editorial_review",
}

var editorialPrompt = util.MustTemplate("editorial", `Decide whether this piece can run.

Title: {{.title}}
{{- if .category}}
Category: {{.category}}{{end}}
Text:
{{truncate 6000 .body}}

`+jsonOnly+` Fields:
{"editorial_decision": "approve|revise|reject", "editorial_notes": "...", "headline_suggestion": "..."}`)

var editorialSchema = jsonx.Schema{Fields: []string{"editorial_decision", "editorial_notes", "headline_suggestion"}}

// EditorialBehavior reviews "title" and "body". It decides on editorial_decision.
type EditorialBehavior struct{}

// NewEditorial returns the editorial_agent.
func NewEditorial(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(editorialConfig, EditorialBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (EditorialBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, editorialPrompt, map[string]any{
		"title":    input.String("title"),
		"category": input.String("category"),
		"body":     body,
	}, editorialSchema)
}

// Validate implements agent.Validator.
func (EditorialBehavior) Validate(output core.Data) error {
	return requireOneOf(output, "editorial_decision", EditorialApprove, EditorialRevise, EditorialReject)
}

// Decision implements agent.Decider.
func (EditorialBehavior) Decision() agent.DecisionRule {
	return agent.RejectUnless("editorial_decision", EditorialApprove)
}
