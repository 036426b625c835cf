package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var publishingConfig = agent.Config{
	Name:         Publishing,
	Description:  "Gives the final go or no-go before publication.",
	SystemPrompt: "You are the publishing manager. You approve content only when it is complete, reviewed and safe for patients.",
	Temperature:  0.1,
	MaxTokens:    800,
	TaskType:     "publishing",
}

var publishingPrompt = util.MustTemplate("publishing", `Decide whether this item is ready to publish.

Title: {{.title}}
{{- if .meta_description}}
Meta description: {{.meta_description}}{{end}}
Legal approved: {{default "unknown" .legal_approved}}
Editorial decision: {{default "unknown" .editorial_decision}}
Text:
{{truncate 3000 .body}}

`+jsonOnly+` Fields:
{"publish_approved": true|false, "publish_channel": "web|newsletter|social", "publish_notes": "..."}`)

var publishingSchema = jsonx.Schema{Fields: []string{"publish_approved", "publish_channel", "publish_notes"}}

// PublishingBehavior approves publication. It refuses without asking the
// model when any upstream step left a failure sentinel in its input.
type PublishingBehavior struct{}

// NewPublishing returns the publishing_agent.
func NewPublishing(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(publishingConfig, PublishingBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (PublishingBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	if failed := input.FailedSteps(); len(failed) > 0 {
		sort.Strings(failed)
		return merge(input, core.Data{
			"publish_approved": false,
			"publish_notes":    fmt.Sprintf("upstream steps failed: %s", strings.Join(failed, ", ")),
		}), nil
	}
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, publishingPrompt, map[string]any{
		"title":              input.String("title"),
		"meta_description":   input.String("meta_description"),
		"legal_approved":     input.String("legal_approved"),
		"editorial_decision": input.String("editorial_decision"),
		"body":               body,
	}, publishingSchema)
}

// Validate implements agent.Validator.
func (PublishingBehavior) Validate(output core.Data) error {
	return requireBool(output, "publish_approved")
}

// Decision implements agent.Decider.
func (PublishingBehavior) Decision() agent.DecisionRule {
	return agent.RejectIfFalse("publish_approved")
}
