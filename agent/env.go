package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/model"
)

// Usage accumulates LLM usage over one run.
type Usage struct {
	Calls    int
	Attempts int
	Tokens   int
	Cost     float64
	Provider string
	Model    string
}

// Env is handed to Behavior.Execute. It is scoped to a single run and not
// safe for concurrent use.
type Env struct {
	cfg     Config
	llm     model.ChatClient
	content core.ContentSearcher
	logger  logging.Logger
	usage   Usage
}

func newEnv(cfg Config, opts *Options) *Env {
	return &Env{cfg: cfg, llm: opts.LLM, content: opts.Content, logger: opts.Logger}
}

// Chat sends userMessage with the agent's system prompt, temperature and token budget.
func (e *Env) Chat(ctx context.Context, userMessage string) (string, error) {
	return e.ChatWith(ctx, model.Request{
		UserMessage:  userMessage,
		SystemPrompt: e.cfg.SystemPrompt,
		Temperature:  e.cfg.Temperature,
		MaxTokens:    e.cfg.MaxTokens,
	})
}

// ChatWith sends a fully specified request and records its usage.
func (e *Env) ChatWith(ctx context.Context, req model.Request) (string, error) {
	if e.llm == nil {
		return "", fmt.Errorf("%w: agent %s has no LLM client", model.ErrConfig, e.cfg.Name)
	}
	resp, err := e.llm.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	e.usage.Calls++
	e.usage.Attempts += resp.Attempts
	e.usage.Tokens += resp.TokensUsed
	e.usage.Cost += resp.Cost
	e.usage.Provider = resp.Provider
	e.usage.Model = resp.Model
	return resp.Text, nil
}

// ChatJSON sends userMessage and parses the answer as a JSON object with the
// layered parser. A parse failure is not an error: the returned map carries
// parse_error and raw_response instead.
func (e *Env) ChatJSON(ctx context.Context, userMessage string, schema jsonx.Schema) (core.Data, error) {
	text, err := e.Chat(ctx, userMessage)
	if err != nil {
		return nil, err
	}
	res := jsonx.Parse(text, schema)
	if res.Stage != jsonx.StageDirect {
		e.logger.Debug("agent.parse.fallback", "agent", e.cfg.Name, "stage", res.Stage.String())
	}
	return core.Data(res.Data), nil
}

// Content returns the content searcher, or nil when none is configured.
func (e *Env) Content() core.ContentSearcher { return e.content }

// Logger returns the run logger.
func (e *Env) Logger() logging.Logger { return e.logger }

// Config returns the agent configuration.
func (e *Env) Config() Config { return e.cfg }

// Usage returns the usage recorded so far.
func (e *Env) Usage() Usage { return e.usage }

// Require returns the trimmed string under field or an *InputError when it is missing or empty.
func Require(input core.Data, field string) (string, error) {
	v := input.String(field)
	if v == "" {
		return "", &InputError{Field: field}
	}
	return v, nil
}

// RequireAny returns the first non-empty field among fields.
func RequireAny(input core.Data, fields ...string) (string, error) {
	for _, f := range fields {
		if v := input.String(f); v != "" {
			return v, nil
		}
	}
	return "", &InputError{Field: strings.Join(fields, "|")}
}

// RequireFields is a Validator helper: every field must be present and non-empty.
func RequireFields(output core.Data, fields ...string) error {
	var missing []string
	for _, f := range fields {
		v, ok := output[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing output fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
