package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Request captures one chat completion call. Provider, when set, pins the
// call to that provider and disables fallback.
type Request struct {
	UserMessage  string  `json:"user_message"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Provider     string  `json:"provider,omitempty"`
}

// Response is the normalized provider answer.
type Response struct {
	Text       string        `json:"text"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
	// Attempts counts every provider attempt made for this response, including failed ones.
	Attempts int `json:"attempts"`
	Raw      any `json:"-"`
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name      string  `json:"name"`  // configured name, e.g. "gemini" or "groq"
	Kind      string  `json:"kind"`  // "openai", "anthropic", "gemini", "mock"
	Model     string  `json:"model"` // default model id
	CostPer1K float64 `json:"cost_per_1k_tokens"`
}

// Provider is one chat-completion backend. Implementations perform a single
// attempt; retries and fallback belong to Client.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the provider implementation.
	Info() Info
}

// ChatClient is what agents depend on.
type ChatClient interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Cost estimates the price of tokens at costPer1K.
func Cost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000 * costPer1K
}

// MockProvider is a lightweight in-memory Provider useful for tests & examples.
// Responses are matched by substring of the user message; the first
// registered match wins.
type MockProvider struct {
	mu        sync.Mutex
	info      Info
	responses []mockResponse
	fallback  string
	failures  []error
	calls     []Request
}

type mockResponse struct {
	match string
	text  string
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider constructs a MockProvider.
func NewMockProvider(name, modelID string) *MockProvider {
	return &MockProvider{info: Info{Name: name, Kind: "mock", Model: modelID}}
}

// AddResponse registers a canned completion for messages containing match.
func (m *MockProvider) AddResponse(match, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{match: match, text: response})
	return m
}

// SetDefault sets the completion returned when no registered match applies.
func (m *MockProvider) SetDefault(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
	return m
}

// FailWith queues errors returned by the next calls, one per call.
func (m *MockProvider) FailWith(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
	return m
}

// FailTimes queues n transient failures.
func (m *MockProvider) FailTimes(n int) *MockProvider {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = NewError(ErrorTypeTransient, "mock transient failure")
	}
	return m.FailWith(errs...)
}

// Calls returns a copy of every request received.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns the number of requests received.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}

	text := m.fallback
	for _, r := range m.responses {
		if strings.Contains(req.UserMessage, r.match) {
			text = r.text
			break
		}
	}
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", req.UserMessage)
	}
	tokens := len(strings.Fields(req.UserMessage)) + len(strings.Fields(text))
	return &Response{
		Text:       text,
		Provider:   m.info.Name,
		Model:      m.info.Model,
		TokensUsed: tokens,
		Cost:       Cost(tokens, m.info.CostPer1K),
	}, nil
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
