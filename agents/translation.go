package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var translationConfig = agent.Config{
	Name:         Translation,
	Description:  "Translates Turkish content to English.",
	SystemPrompt: "You are a professional medical translator from Turkish to English. Keep medical terminology precise and the tone patient friendly.",
	Temperature:  0.3,
	MaxTokens:    4000,
	TaskType:     "translation",
}

var translationPrompt = util.MustTemplate("translation", `Translate the following Turkish content to English.
Keep markdown formatting. Do not add or remove information.

Title: {{.title}}
{{- if .summary}}
Summary: {{.summary}}{{end}}
Body:
{{.body}}

`+jsonOnly+` Fields:
{"title_en": "...", "summary_en": "...", "body_en": "..."}`)

var translationSchema = jsonx.Schema{Fields: []string{"title_en", "summary_en", "body_en"}, BodyField: "body_en"}

// TranslationBehavior translates "title", "summary" and "body".
type TranslationBehavior struct{}

// NewTranslation returns the translation_agent.
func NewTranslation(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(translationConfig, TranslationBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (TranslationBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content", "text")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, translationPrompt, map[string]any{
		"title":   input.String("title"),
		"summary": input.String("summary"),
		"body":    body,
	}, translationSchema)
}

// Validate implements agent.Validator.
func (TranslationBehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "body_en")
}
