package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/burhanettinuludag/clinicmesh/logging"
	"github.com/burhanettinuludag/clinicmesh/metrics"
)

// Options configure a Client.
type Options struct {
	// Primary is the provider tried first. Defaults to the first provider passed to NewClient.
	Primary string
	// Fallbacks are tried in order after the primary is exhausted.
	Fallbacks []string
	// MaxRetries is the number of attempts per provider.
	MaxRetries int
	// RetryDelay is the base backoff; attempt k waits RetryDelay*(k-1).
	RetryDelay time.Duration
	// Timeout bounds every single provider attempt.
	Timeout time.Duration
	Logger  logging.Logger
	Metrics metrics.Recorder
	// Sleep waits between attempts; it must return early with ctx.Err() on cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client implements ChatClient over a set of named providers with retry and fallback.
type Client struct {
	providers map[string]Provider
	names     []string
	opts      Options
}

var _ ChatClient = (*Client)(nil)

// NewClient builds a client over providers. Primary defaults to the first
// provider and Fallbacks to none.
//
// It fails with ErrConfig when no providers are given or Primary/Fallbacks
// reference an unknown provider. Configuration errors are never retried, so
// callers should treat them as fatal at startup.
func NewClient(providers []Provider, optFns ...func(o *Options)) (*Client, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrConfig)
	}
	opts := Options{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    60 * time.Second,
		Logger:     logging.NoOpLogger{},
		Metrics:    metrics.Nop(),
		Sleep:      sleepContext,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Metrics = metrics.OrNop(opts.Metrics)
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	c := &Client{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := p.Info().Name
		if name == "" {
			return nil, fmt.Errorf("%w: provider without name", ErrConfig)
		}
		if _, dup := c.providers[name]; dup {
			return nil, fmt.Errorf("%w: duplicate provider %q", ErrConfig, name)
		}
		c.providers[name] = p
		c.names = append(c.names, name)
	}
	if opts.Primary == "" {
		opts.Primary = c.names[0]
	}
	for _, name := range append([]string{opts.Primary}, opts.Fallbacks...) {
		if _, ok := c.providers[name]; !ok {
			return nil, fmt.Errorf("%w: %w %q", ErrConfig, ErrUnknownProvider, name)
		}
	}
	c.opts = opts
	return c, nil
}

// Providers returns provider metadata in registration order.
func (c *Client) Providers() []Info {
	out := make([]Info, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.providers[n].Info())
	}
	return out
}

func (c *Client) chain(explicit string) ([]string, error) {
	if explicit != "" {
		if _, ok := c.providers[explicit]; !ok {
			return nil, fmt.Errorf("%w: %w %q", ErrConfig, ErrUnknownProvider, explicit)
		}
		return []string{explicit}, nil
	}
	chain := make([]string, 0, 1+len(c.opts.Fallbacks))
	seen := make(map[string]struct{})
	for _, n := range append([]string{c.opts.Primary}, c.opts.Fallbacks...) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		chain = append(chain, n)
	}
	return chain, nil
}

// Chat sends req through the provider chain and returns the first successful
// response.
//
// With req.Provider set only that provider is tried. Otherwise the primary
// provider is tried first and the fallbacks follow in order. Each provider
// gets up to MaxRetries attempts with a linear delay (RetryDelay, then twice
// that, and so on) between them. Errors that retrying cannot fix (auth,
// bad_prompt) move straight to the next provider; config errors and a done
// ctx end the call at once.
//
// Parameters:
//   - ctx: Bounds the whole call; every attempt also gets Options.Timeout
//   - req: Prompt, sampling settings and an optional explicit provider
//
// Returns:
//   - *Response: Text plus provider, model, tokens, cost and attempt count
//   - error: ErrExhausted wrapping the last cause when every provider failed
//
// Example:
//
//	resp, err := client.Chat(ctx, model.Request{SystemPrompt: sys, UserMessage: msg})
//	if model.IsExhausted(err) {
//		return err
//	}
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	chain, err := c.chain(req.Provider)
	if err != nil {
		return nil, err
	}

	attempts := 0
	var last error
	for i, name := range chain {
		p := c.providers[name]
		for k := 1; k <= c.opts.MaxRetries; k++ {
			if k > 1 {
				if err := c.opts.Sleep(ctx, c.opts.RetryDelay*time.Duration(k-1)); err != nil {
					return nil, fmt.Errorf("llm: %w", err)
				}
			}
			attempts++
			resp, err := c.attempt(ctx, p, req)
			if err == nil {
				resp.Attempts = attempts
				return resp, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("llm: %w", ctxErr)
			}

			llmErr := Classify(name, err)
			last = llmErr
			if llmErr.Type == ErrorTypeConfig {
				c.opts.Logger.Error("llm.provider.config", "provider", name, "error", llmErr)
				return nil, llmErr
			}
			if !llmErr.IsRetryable() {
				c.opts.Logger.Warn("llm.provider.abort", "provider", name, "attempt", k, "error_type", llmErr.Type.String(), "error", llmErr)
				break
			}
			c.opts.Logger.Warn("llm.provider.retry", "provider", name, "attempt", k, "max_attempts", c.opts.MaxRetries, "error_type", llmErr.Type.String(), "error", llmErr)
		}
		if i+1 < len(chain) {
			c.opts.Logger.Warn("llm.provider.fallback", "from", name, "to", chain[i+1])
		}
	}

	c.opts.Logger.Error("llm.exhausted", "providers", chain, "attempts", attempts, "error", last)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

func (c *Client) attempt(ctx context.Context, p Provider, req Request) (*Response, error) {
	info := p.Info()
	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Complete(callCtx, req)
	dur := time.Since(start)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Text) == "") {
		err = &Error{Type: ErrorTypeEmptyResponse, Message: "provider returned no text", Provider: info.Name}
	}
	if err != nil {
		llmErr := Classify(info.Name, err)
		c.opts.Metrics.ObserveLLMCall(info.Name, info.Model, 0, 0, false, llmErr.Type.String(), dur)
		c.opts.Logger.Debug("llm.call.failed", "provider", info.Name, "model", info.Model, "duration", dur, "error", err)
		return nil, err
	}

	if resp.Provider == "" {
		resp.Provider = info.Name
	}
	if resp.Model == "" {
		resp.Model = info.Model
	}
	if resp.Cost == 0 && info.CostPer1K > 0 {
		resp.Cost = Cost(resp.TokensUsed, info.CostPer1K)
	}
	resp.Duration = dur
	c.opts.Metrics.ObserveLLMCall(resp.Provider, resp.Model, resp.TokensUsed, resp.Cost, true, "", dur)
	if sl, ok := c.opts.Logger.(*logging.StructuredLogger); ok {
		sl.LogLLMCall(resp.Provider, resp.Model, resp.TokensUsed, dur, true, nil)
	} else {
		c.opts.Logger.Info("llm.call.completed", "provider", resp.Provider, "model", resp.Model, "tokens", resp.TokensUsed, "duration", dur)
	}
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsExhausted reports whether err means every provider failed.
func IsExhausted(err error) bool { return errors.Is(err, ErrExhausted) }
