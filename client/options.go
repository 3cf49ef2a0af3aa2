package client

import (
	"log/slog"
	"net/http"

	"github.com/xraph/drafter/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The default wraps
// http.DefaultTransport with otelhttp.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Add(key, value) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry retries reads up to attempts times on transport errors and
// 503 responses. Start and resume are never retried.
func WithRetry(attempts int, s backoff.Strategy) Option {
	return func(c *Client) {
		c.attempts = attempts
		if s != nil {
			c.backoff = s
		}
	}
}
