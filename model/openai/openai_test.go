package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_Complete(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "llama-3.3-70b",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " {\"title\": \"Migren\"} "}}],
		"usage": {"prompt_tokens": 30, "completion_tokens": 20, "total_tokens": 50}
	}`, &seen)

	p, err := New(func(o *Options) {
		o.Name = "groq"
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
		o.Model = "llama-3.3-70b"
		o.CostPer1K = 0.2
	})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), model.Request{
		UserMessage:  "Write about migraine",
		SystemPrompt: "You are a medical editor",
		Temperature:  0.3,
		MaxTokens:    800,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title": "Migren"}`, resp.Text)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, "llama-3.3-70b", resp.Model)
	assert.Equal(t, 50, resp.TokensUsed)
	assert.InDelta(t, 0.01, resp.Cost, 1e-9)

	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.EqualValues(t, 800, seen["max_tokens"])
}

func TestProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   model.ErrorType
	}{
		{http.StatusUnauthorized, model.ErrorTypeAuth},
		{http.StatusTooManyRequests, model.ErrorTypeRateLimit},
		{http.StatusBadGateway, model.ErrorTypeTransient},
		{http.StatusBadRequest, model.ErrorTypeBadPrompt},
	}
	for _, tt := range tests {
		srv := newServer(t, tt.status, `{"error": {"message": "nope", "type": "error"}}`, nil)
		p, err := New(func(o *Options) {
			o.APIKey = "test-key"
			o.BaseURL = srv.URL + "/"
		})
		require.NoError(t, err)

		_, err = p.Complete(context.Background(), model.Request{UserMessage: "x"})
		require.Error(t, err)
		assert.Equal(t, tt.want, model.TypeOf(err), tt.status)
	}
}

func TestProvider_EmptyChoices(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`, nil)
	p, err := New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
	})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), model.Request{UserMessage: "x"})
	assert.True(t, model.Is(err, model.ErrorTypeEmptyResponse))
}

func TestNew_MissingKey(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestInfo(t *testing.T) {
	p, err := New(func(o *Options) { o.APIKey = "k" })
	require.NoError(t, err)
	info := p.Info()
	assert.Equal(t, "openai", info.Name)
	assert.Equal(t, "openai", info.Kind)
}
