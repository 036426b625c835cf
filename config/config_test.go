package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burhanettinuludag/clinicmesh/logging"
)

func env(vars map[string]string) func(o *LoadOptions) {
	return func(o *LoadOptions) {
		o.LookupEnv = func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}
	}
}

const fullYAML = `
llm:
  primary: gemini
  fallbacks: [claude]
  max_retries: 2
  retry_delay: 250ms
  providers:
    gemini:
      model: gemini-2.0-flash
      cost_per_1k_tokens: 0.1
    claude:
      kind: anthropic
      api_key: ${CLAUDE_KEY}
      model: claude-3-5-haiku-latest
flags:
  agent.qa_agent.enabled: true
flag_cache_ttl: 5s
logging:
  level: debug
  format: text
storage:
  driver: sqlite
worker:
  workers: 4
pipelines:
  - name: legal_then_translate
    steps: [legal_agent, translation_agent]
    stop_on_failure: true
    gatekeepers:
      - step: legal_agent
content:
  - id: d1
    type: article
    title: {tr: Migren, en: Migraine}
`

func TestParse_Full(t *testing.T) {
	c, err := Parse([]byte(fullYAML), env(map[string]string{"GEMINI_API_KEY": " gk ", "CLAUDE_KEY": "ck"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini", "claude"}, c.ChainNames())
	assert.Equal(t, "gk", c.LLM.Providers["gemini"].APIKey, "kind-default env var, trimmed")
	assert.Equal(t, KindGemini, c.LLM.Providers["gemini"].Kind)
	assert.Equal(t, "ck", c.LLM.Providers["claude"].APIKey)
	assert.Equal(t, 250*time.Millisecond, c.LLM.RetryDelay)
	assert.Equal(t, 60*time.Second, c.LLM.Timeout)
	assert.True(t, c.Flags["agent.qa_agent.enabled"])
	assert.Equal(t, 5*time.Second, c.FlagCacheTTL)
	assert.Equal(t, logging.LogLevelDebug, c.LogLevel())
	assert.Equal(t, "clinicmesh.db", c.Storage.DSN)
	assert.Equal(t, 4, c.Worker.Workers)
	assert.Equal(t, 64, c.Worker.QueueSize)
	require.Len(t, c.Pipelines, 1)
	require.Len(t, c.Content, 1)
	assert.Equal(t, "Migraine", c.Content[0].Title.EN)
}

func TestParse_APIKeyEnv(t *testing.T) {
	doc := `
llm:
  providers:
    openai:
      api_key_env: MY_OPENAI
`
	c, err := Parse([]byte(doc), env(map[string]string{"MY_OPENAI": "sk-1", "OPENAI_API_KEY": "ignored"}))
	require.NoError(t, err)
	assert.Equal(t, "openai", c.LLM.Primary, "a single provider becomes primary")
	assert.Equal(t, "sk-1", c.LLM.Providers["openai"].APIKey)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"missing key", "llm:\n  providers:\n    openai: {}\n"},
		{"unknown fallback", "llm:\n  primary: m\n  fallbacks: [x]\n  providers:\n    m: {kind: mock}\n"},
		{"unknown kind", "llm:\n  providers:\n    m: {kind: llama}\n"},
		{"no primary", "llm:\n  providers:\n    a: {kind: mock}\n    b: {kind: mock}\n"},
		{"bad driver", "storage:\n  driver: postgres\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad pipeline", "pipelines:\n  - name: p\n    steps: [a]\n    gatekeepers: [{step: b}]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc), env(nil))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), err.Error())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("llm: [unclosed"), env(nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Empty(t, c.ChainNames())
	assert.Equal(t, 3, c.LLM.MaxRetries)
	assert.Equal(t, 10*time.Minute, c.Worker.JobTimeout)
	require.NotNil(t, c.Worker.MaxRetries)
	assert.Equal(t, DefaultJobRetries, *c.Worker.MaxRetries)
	assert.Equal(t, 1000, c.Worker.KeepFinished)
}

func TestParse_WorkerRetries(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{"unset", "worker:\n  workers: 1\n", 1},
		{"disabled", "worker:\n  max_retries: 0\n", 0},
		{"explicit", "worker:\n  max_retries: 3\n", 3},
		{"negative", "worker:\n  max_retries: -2\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml), env(nil))
			require.NoError(t, err)
			require.NotNil(t, c.Worker.MaxRetries)
			assert.Equal(t, tt.want, *c.Worker.MaxRetries)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinicmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  providers:\n    mock: {response: ok}\n"), 0o600))

	c, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "mock", c.LLM.Primary)
	assert.Equal(t, "ok", c.LLM.Providers["mock"].Response)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
