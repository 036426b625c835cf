// Package model defines the provider-agnostic chat completion layer.
//
// A Provider performs a single attempt against one backend (OpenAI-compatible,
// Anthropic or Gemini; see the sub packages). Client composes providers into
// one ChatClient: it retries the primary with linear backoff, falls over to
// the configured fallbacks in order and returns one aggregated error wrapping
// ErrExhausted when everything failed.
//
// Provider failures are classified into ErrorType categories so the client can
// tell retryable errors (rate limits, 5xx, timeouts, empty responses) from
// errors that should move on to the next provider (auth, bad prompt) and
// configuration errors that abort the call.
//
// MockProvider offers deterministic responses and scripted failures for tests.
package model
