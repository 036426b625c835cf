package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var newsConfig = agent.Config{
	Name:         News,
	Description:  "Writes a short health news item from a source or topic.",
	SystemPrompt: "You are a health journalist. You report research and clinic news accurately, cite the source and avoid sensational language.",
	Temperature:  0.5,
	MaxTokens:    2000,
	TaskType:     "news_writing",
}

var newsPrompt = util.MustTemplate("news", `Write a news item in {{.language}}.
{{if .source}}
Source material:
{{truncate 6000 .source}}
{{else}}
Topic: {{.topic}}
{{end}}
{{- if .source_url}}
Source URL: {{.source_url}}{{end}}

`+medicalRules+`

`+jsonOnly+` Fields:
{"title": "...", "summary": "...", "category": "research|clinic|public_health", "body": "..."}`)

var newsSchema = jsonx.Schema{Fields: []string{"title", "summary", "category", "body"}, BodyField: "body"}

// NewsBehavior writes from "source_text" or "topic".
type NewsBehavior struct{}

// NewNews returns the news_agent.
func NewNews(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(newsConfig, NewsBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (NewsBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	if _, err := agent.RequireAny(input, "source_text", "topic"); err != nil {
		return nil, err
	}
	return complete(ctx, env, input, newsPrompt, map[string]any{
		"language":   languageName(lang(input)),
		"source":     input.String("source_text"),
		"topic":      input.String("topic"),
		"source_url": input.String("source_url"),
	}, newsSchema)
}

// Validate implements agent.Validator.
func (NewsBehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "title", "body")
}
