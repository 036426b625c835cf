package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var legalConfig = agent.Config{
	Name:         Legal,
	Description:  "Audits health content for regulatory and liability problems.",
	SystemPrompt: "You are a compliance reviewer for Turkish health advertising regulation and medical liability. You are strict and you explain every issue.",
	Temperature:  0.1,
	MaxTokens:    1500,
	TaskType:     "legal_review",
}

var legalPrompt = util.MustTemplate("legal", `Review this health content before publication.

Title: {{.title}}
Text:
{{truncate 6000 .body}}

Reject (legal_approved=false) when the text:
- names drug dosages or tells patients to change medication
- promises cures, guarantees results or quotes unverified success rates
- advertises a clinic or doctor in a way health advertising rules forbid
- lacks a disclaimer that it does not replace medical advice

`+jsonOnly+` Fields:
{"legal_approved": true|false, "legal_risk_level": "low|medium|high", "legal_issues": ["..."], "legal_notes": "..."}`)

var legalSchema = jsonx.Schema{Fields: []string{"legal_approved", "legal_risk_level", "legal_notes"}}

// LegalBehavior audits "body". It decides on legal_approved.
type LegalBehavior struct{}

// NewLegal returns the legal_agent.
func NewLegal(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(legalConfig, LegalBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (LegalBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, legalPrompt, map[string]any{
		"title": input.String("title"),
		"body":  body,
	}, legalSchema)
}

// Validate implements agent.Validator.
func (LegalBehavior) Validate(output core.Data) error {
	return requireBool(output, "legal_approved")
}

// Decision implements agent.Decider.
func (LegalBehavior) Decision() agent.DecisionRule {
	return agent.RejectIfFalse("legal_approved")
}
