package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var contentConfig = agent.Config{
	Name:         Content,
	Description:  "Writes patient education articles on a health topic.",
	SystemPrompt: "You are a medical content writer for a neurology clinic. You write accurate, calm and easy to read patient education articles.",
	Temperature:  0.7,
	MaxTokens:    3000,
	TaskType:     "content_generation",
}

var contentPrompt = util.MustTemplate("content", `Write a patient education article.

Topic: {{.topic}}
Language: {{.language}}
{{- if .audience}}
Audience: {{.audience}}{{end}}
{{- if .keywords}}
Keywords to cover: {{join ", " .keywords}}{{end}}

`+medicalRules+`

`+jsonOnly+` Fields:
{"title": "...", "summary": "two sentences", "body": "markdown article", "tags": ["..."]}`)

var contentSchema = jsonx.Schema{Fields: []string{"title", "summary", "body"}, BodyField: "body"}

// ContentBehavior writes an article for input "topic".
type ContentBehavior struct{}

// NewContent returns the content_agent.
func NewContent(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(contentConfig, ContentBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (ContentBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	topic, err := agent.Require(input, "topic")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, contentPrompt, map[string]any{
		"topic":    topic,
		"language": languageName(lang(input)),
		"audience": input.String("audience"),
		"keywords": input.Strings("keywords"),
	}, contentSchema)
}

// Validate implements agent.Validator.
func (ContentBehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "title", "body")
}
