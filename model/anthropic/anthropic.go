// Package anthropic provides a model.Provider for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/burhanettinuludag/clinicmesh/model"
)

// DefaultMaxTokens is used when a request does not set MaxTokens; the
// Messages API requires the field.
const DefaultMaxTokens = 2048

// Options configures the Anthropic provider adapter (model id, API key, pricing).
type Options struct {
	Name      string
	Model     anthropic.Model
	APIKey    string
	BaseURL   string
	CostPer1K float64
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Provider = (*Provider)(nil)

// New creates a new Anthropic provider using the official client.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s: api key is required", model.ErrConfig, opts.Name)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Provider{client: &client, opts: opts}, nil
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{Name: "anthropic", Model: anthropic.Model("claude-3-5-haiku-latest")}
}

// Complete performs one Messages API call. The system prompt travels as a
// native system block.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, model.NewStatusError(p.opts.Name, apiErr.StatusCode, err)
		}
		return nil, model.Classify(p.opts.Name, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	modelID := string(msg.Model)
	if modelID == "" {
		modelID = string(p.opts.Model)
	}
	return &model.Response{
		Text:       strings.TrimSpace(sb.String()),
		Provider:   p.opts.Name,
		Model:      modelID,
		TokensUsed: tokens,
		Cost:       model.Cost(tokens, p.opts.CostPer1K),
		Raw:        msg,
	}, nil
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Name, Kind: "anthropic", Model: string(p.opts.Model), CostPer1K: p.opts.CostPer1K}
}
