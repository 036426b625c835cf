// Package openai provides a model.Provider backed by the OpenAI Chat
// Completions API. Any OpenAI-compatible endpoint (Groq, OpenRouter, local
// gateways) works by setting BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI provider adapter.
type Options struct {
	// Name is the provider name used by model.Client routing. Defaults to "openai".
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	CostPer1K float64
	// RequestOptions are appended to the SDK client options.
	RequestOptions []option.RequestOption
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

var _ model.Provider = (*Provider)(nil)

// New creates a provider using the official client. A missing API key is a
// configuration error.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s: api key is required", model.ErrConfig, opts.Name)
	}

	// Retries are owned by model.Client.
	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	clientOpts = append(clientOpts, opts.RequestOptions...)
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}, nil
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{Name: "openai", Model: openai.ChatModelGPT4oMini}
}

// Complete performs a single chat completion.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &model.Error{Type: model.ErrorTypeEmptyResponse, Message: "no choices returned", Provider: p.opts.Name}
	}
	tokens := int(resp.Usage.TotalTokens)
	modelID := resp.Model
	if modelID == "" {
		modelID = p.opts.Model
	}
	return &model.Response{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Provider:   p.opts.Name,
		Model:      modelID,
		TokensUsed: tokens,
		Cost:       model.Cost(tokens, p.opts.CostPer1K),
		Raw:        resp,
	}, nil
}

func (p *Provider) buildParams(req model.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	params := openai.ChatCompletionNewParams{
		Model:       p.opts.Model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (p *Provider) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.NewStatusError(p.opts.Name, apiErr.StatusCode, err)
	}
	return model.Classify(p.opts.Name, err)
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Name, Kind: "openai", Model: p.opts.Model, CostPer1K: p.opts.CostPer1K}
}
