package agents

import (
	"context"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// Quality decisions.
const (
	DecisionPublish = "publish"
	DecisionRevise  = "revise"
	DecisionReject  = "reject"
)

var qualityConfig = agent.Config{
	Name:         Quality,
	Description:  "Scores article quality and decides publish, revise or reject.",
	SystemPrompt: "You are the senior medical editor of a neurology clinic. You score patient content for accuracy, clarity, structure and empathy.",
	Temperature:  0.2,
	MaxTokens:    1200,
	TaskType:     "quality_check",
}

var qualityPrompt = util.MustTemplate("quality", `Score this article from 0 to 100.

Title: {{.title}}
Article:
{{truncate 6000 .body}}

decision is "publish" for a score of at least 75, "revise" for 50 to 74 and "reject" otherwise.

`+jsonOnly+` Fields:
{"quality_score": 0-100, "decision": "publish|revise|reject", "quality_feedback": ["..."]}`)

var qualitySchema = jsonx.Schema{Fields: []string{"quality_score", "decision"}}

// QualityBehavior scores "body". It decides on decision.
type QualityBehavior struct{}

// NewQuality returns the quality_agent.
func NewQuality(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(qualityConfig, QualityBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (QualityBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, qualityPrompt, map[string]any{
		"title": input.String("title"),
		"body":  body,
	}, qualitySchema)
}

// Validate implements agent.Validator.
func (QualityBehavior) Validate(output core.Data) error {
	score, ok := output.Float("quality_score")
	if !ok || score < 0 || score > 100 {
		return fmt.Errorf("quality_score must be a number between 0 and 100, got %v", output["quality_score"])
	}
	return requireOneOf(output, "decision", DecisionPublish, DecisionRevise, DecisionReject)
}

// Decision implements agent.Decider.
func (QualityBehavior) Decision() agent.DecisionRule {
	return agent.RejectUnless("decision", DecisionPublish)
}
