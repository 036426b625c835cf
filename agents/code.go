package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var codeConfig = agent.Config{
	Name:         Code,
	Description:  "Generates code for a small platform task.",
	SystemPrompt: "You are a senior software engineer. You write small, tested, production ready code and never include secrets.",
	Temperature:  0.2,
	MaxTokens:    4000,
	TaskType:     "code_generation",
}

var codePrompt = util.MustTemplate("code", `Task: {{.task}}
Language: {{.language}}
{{- if .context}}
Context:
{{.context}}{{end}}

`+jsonOnly+` Fields:
{"filename": "...", "explanation": "...", "code": "complete source file"}`)

// code is last so an unescaped source file can span to the closing brace.
var codeSchema = jsonx.Schema{Fields: []string{"filename", "explanation", "code"}, BodyField: "code"}

// CodeBehavior implements "task" in "language" (default go).
type CodeBehavior struct{}

// NewCode returns the code_agent.
func NewCode(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(codeConfig, CodeBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (CodeBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	taskText, err := agent.Require(input, "task")
	if err != nil {
		return nil, err
	}
	language := input.String("language")
	if language == "" {
		language = "go"
	}
	return complete(ctx, env, input, codePrompt, map[string]any{
		"task":     taskText,
		"language": language,
		"context":  input.String("context"),
	}, codeSchema)
}

// Validate implements agent.Validator.
func (CodeBehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "code")
}
