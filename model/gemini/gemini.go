// Package gemini provides a model.Provider for Google Gemini via google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/burhanettinuludag/clinicmesh/model"
)

// SystemAck is the model turn that acknowledges the simulated system prompt.
const SystemAck = "Understood. I will follow these instructions."

// Options configure the Gemini provider.
type Options struct {
	Name      string
	APIKey    string
	Model     string
	BaseURL   string
	CostPer1K float64
}

// Provider wraps the GenAI client. The client is created on first use since
// construction needs a context.
type Provider struct {
	mu     sync.Mutex
	client *genai.Client
	opts   Options
}

var _ model.Provider = (*Provider)(nil)

// New validates options and returns a provider. A missing API key is a configuration error.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{Name: "gemini", Model: "gemini-2.0-flash"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s: api key is required", model.ErrConfig, opts.Name)
	}
	return &Provider{opts: opts}, nil
}

func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  p.opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, model.NewErrorWithCause(model.ErrorTypeConfig, err, "failed to create Gemini client")
	}
	p.client = client
	return client, nil
}

// Complete performs one GenerateContent call.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.MaxTokens > 0 {
		//nolint:gosec // token budgets are small
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := client.Models.GenerateContent(ctx, p.opts.Model, buildContents(req.SystemPrompt, req.UserMessage), config)
	if err != nil {
		return nil, p.classify(err)
	}
	if result == nil {
		return nil, &model.Error{Type: model.ErrorTypeEmptyResponse, Message: "empty response from Gemini API", Provider: p.opts.Name}
	}

	tokens := 0
	if result.UsageMetadata != nil {
		tokens = int(result.UsageMetadata.TotalTokenCount)
	}
	modelID := result.ModelVersion
	if modelID == "" {
		modelID = p.opts.Model
	}
	return &model.Response{
		Text:       strings.TrimSpace(result.Text()),
		Provider:   p.opts.Name,
		Model:      modelID,
		TokensUsed: tokens,
		Cost:       model.Cost(tokens, p.opts.CostPer1K),
		Raw:        result,
	}, nil
}

// buildContents lays out the conversation. The system prompt is sent as a
// leading user turn followed by a model acknowledgement.
func buildContents(systemPrompt, userMessage string) []*genai.Content {
	contents := make([]*genai.Content, 0, 3)
	if systemPrompt != "" {
		contents = append(contents,
			&genai.Content{Role: "user", Parts: []*genai.Part{{Text: systemPrompt}}},
			&genai.Content{Role: "model", Parts: []*genai.Part{{Text: SystemAck}}},
		)
	}
	return append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: userMessage}}})
}

func (p *Provider) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return model.NewStatusError(p.opts.Name, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return model.NewStatusError(p.opts.Name, apiErrPtr.Code, err)
	}
	return model.Classify(p.opts.Name, err)
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Name, Kind: "gemini", Model: p.opts.Model, CostPer1K: p.opts.CostPer1K}
}
