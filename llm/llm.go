// Package llm provides the language-model capability the extraction pipeline
// consumes: selector discovery, paywall judgement, completeness judgement.
//
// The pipeline only needs Complete. Retry and key-rotation live here, in the
// Client's provider fallback, not in the callers: a caller sees one Complete
// that either returns text or fails, and every caller must tolerate failure
// by falling back to its documented heuristic default.
package llm

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoProvider is returned when no provider is configured or available.
var ErrNoProvider = errors.New("llm: no provider available")

// Format selects the expected response shape.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Request is a single completion request.
type Request struct {
	Prompt      string
	System      string
	Model       string // empty = provider default
	Temperature float64
	MaxTokens   int
	Format      Format
}

// Provider is a language-model backend.
type Provider interface {
	// Name returns the provider name for logging.
	Name() string

	// Available reports whether the provider is ready to use.
	Available() bool

	// Complete sends a request and returns the raw response text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Client fans a request over providers in order, returning the first
// success. Configuring the same backend twice with different API keys gives
// simple key rotation.
type Client struct {
	providers []Provider
	logger    *slog.Logger
}

// NewClient creates a Client. Providers are tried in order.
func NewClient(logger *slog.Logger, providers ...Provider) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{providers: providers, logger: logger}
}

// Available reports whether any provider is usable.
func (c *Client) Available() bool {
	for _, p := range c.providers {
		if p.Available() {
			return true
		}
	}
	return false
}

// Complete sends the request to the first available provider, falling
// through to the next on error.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		out, err := p.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		c.logger.Warn("llm: provider failed, trying next", "provider", p.Name(), "error", err)
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoProvider
}
