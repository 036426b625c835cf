// Package config loads the process configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Provider kinds.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindMock      = "mock"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// DefaultJobRetries is how often a crashed job is re-queued when
// worker.max_retries is unset.
const DefaultJobRetries = 1

// defaultKeyEnv is consulted when a provider sets neither api_key nor api_key_env.
var defaultKeyEnv = map[string]string{
	KindOpenAI:    "OPENAI_API_KEY",
	KindAnthropic: "ANTHROPIC_API_KEY",
	KindGemini:    "GEMINI_API_KEY",
}

// Config is the root configuration. It is read once at startup.
type Config struct {
	LLM          LLMConfig       `yaml:"llm"`
	Flags        map[string]bool `yaml:"flags"`
	FlagCacheTTL time.Duration   `yaml:"flag_cache_ttl"`
	Logging      LoggingConfig   `yaml:"logging"`
	Storage      StorageConfig   `yaml:"storage"`
	Worker       WorkerConfig    `yaml:"worker"`
	Pipelines    []pipeline.Spec `yaml:"pipelines"`
	// Content seeds the content store at startup.
	Content []core.Document `yaml:"content"`
}

// LLMConfig configures the provider chain.
type LLMConfig struct {
	Primary    string                    `yaml:"primary"`
	Fallbacks  []string                  `yaml:"fallbacks"`
	MaxRetries int                       `yaml:"max_retries"`
	RetryDelay time.Duration             `yaml:"retry_delay"`
	Timeout    time.Duration             `yaml:"timeout"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one named provider.
type ProviderConfig struct {
	// Kind selects the adapter; it defaults to the provider name.
	Kind      string  `yaml:"kind"`
	APIKey    string  `yaml:"api_key"`
	APIKeyEnv string  `yaml:"api_key_env"`
	Model     string  `yaml:"model"`
	BaseURL   string  `yaml:"base_url"`
	CostPer1K float64 `yaml:"cost_per_1k_tokens"`
	// Response is the canned answer of a mock provider.
	Response string `yaml:"response"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// WorkerConfig configures the async runner.
type WorkerConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
	// MaxRetries bounds crash re-queues per job. Unset means 1; 0 disables
	// retries.
	MaxRetries *int `yaml:"max_retries"`
	// KeepFinished bounds the finished jobs kept for status queries.
	KeepFinished int `yaml:"keep_finished"`
}

// LoadOptions tune Load.
type LoadOptions struct {
	// LookupEnv resolves ${VAR} references and api key variables.
	LookupEnv func(string) (string, bool)
	ReadFile  func(string) ([]byte, error)
}

// Default returns an in-memory configuration with no providers and every
// flag off.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, expands ${VAR} references, applies defaults and
// validates the result.
func Load(path string, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{LookupEnv: os.LookupEnv, ReadFile: os.ReadFile}
	for _, fn := range optFns {
		fn(&opts)
	}
	data, err := opts.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data, optFns...)
}

// Parse is Load for an in-memory document.
func Parse(data []byte, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{LookupEnv: os.LookupEnv}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	c := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		expanded := os.Expand(string(data), func(name string) string {
			v, _ := opts.LookupEnv(name)
			return v
		})
		if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	c.applyDefaults()
	c.resolveKeys(opts.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay <= 0 {
		c.LLM.RetryDelay = time.Second
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Flags == nil {
		c.Flags = map[string]bool{}
	}
	if c.FlagCacheTTL <= 0 {
		c.FlagCacheTTL = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.DSN == "" {
		c.Storage.DSN = "clinicmesh.db"
	}
	if c.Worker.Workers <= 0 {
		c.Worker.Workers = 2
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 64
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = 10 * time.Minute
	}
	if c.Worker.KeepFinished <= 0 {
		c.Worker.KeepFinished = 1000
	}
	switch {
	case c.Worker.MaxRetries == nil:
		c.Worker.MaxRetries = intPtr(DefaultJobRetries)
	case *c.Worker.MaxRetries < 0:
		c.Worker.MaxRetries = intPtr(0)
	}
	for name, p := range c.LLM.Providers {
		if p.Kind == "" {
			p.Kind = name
		}
		p.Kind = strings.ToLower(p.Kind)
		c.LLM.Providers[name] = p
	}
	if c.LLM.Primary == "" && len(c.LLM.Providers) == 1 {
		for name := range c.LLM.Providers {
			c.LLM.Primary = name
		}
	}
}

func intPtr(v int) *int { return &v }

func (c *Config) resolveKeys(lookup func(string) (string, bool)) {
	for name, p := range c.LLM.Providers {
		if p.APIKey != "" {
			continue
		}
		env := p.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv[p.Kind]
		}
		if env == "" {
			continue
		}
		if v, ok := lookup(env); ok {
			p.APIKey = strings.TrimSpace(v)
			c.LLM.Providers[name] = p
		}
	}
}

// Validate reports the first configuration error, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: logging.format %q (want json or text)", ErrInvalid, c.Logging.Format)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("%w: storage.driver %q (want memory or sqlite)", ErrInvalid, c.Storage.Driver)
	}

	for _, name := range c.ProviderNames() {
		switch kind := c.LLM.Providers[name].Kind; kind {
		case KindOpenAI, KindAnthropic, KindGemini, KindMock:
		default:
			return fmt.Errorf("%w: llm.providers.%s: unknown kind %q", ErrInvalid, name, kind)
		}
	}
	if len(c.LLM.Providers) > 0 && c.LLM.Primary == "" {
		return fmt.Errorf("%w: llm.primary is required with more than one provider", ErrInvalid)
	}
	for _, name := range c.ChainNames() {
		p, ok := c.LLM.Providers[name]
		if !ok {
			return fmt.Errorf("%w: llm provider %q is not configured", ErrInvalid, name)
		}
		if p.Kind != KindMock && p.APIKey == "" {
			return fmt.Errorf("%w: llm provider %q has no api key", ErrInvalid, name)
		}
	}

	if _, err := pipeline.FromSpecs(c.Pipelines); err != nil {
		return fmt.Errorf("%w: pipelines: %v", ErrInvalid, err)
	}
	return nil
}

// ChainNames returns the primary followed by the fallbacks.
func (c *Config) ChainNames() []string {
	if c.LLM.Primary == "" {
		return nil
	}
	return append([]string{c.LLM.Primary}, c.LLM.Fallbacks...)
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.LLM.Providers))
	for n := range c.LLM.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LogLevel returns the parsed logging level. Validate guarantees it parses.
func (c *Config) LogLevel() logging.LogLevel {
	l, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LogLevelInfo
	}
	return l
}
