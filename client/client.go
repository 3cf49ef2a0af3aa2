// Package client is a Go client for the drafter HTTP API.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//
//	out, err := c.Start(ctx, "pliego", map[string]any{
//	    "title":     "Losa de 15 cm",
//	    "base_spec": base,
//	})
//	for err == nil && out.Suspended() {
//	    decision := askReviewer(out.Suspension.Payload)
//	    out, err = c.Resume(ctx, out.ExecutionID().String(), decision)
//	}
//
// Errors returned by the server match the drafter sentinels with
// errors.Is, so a stale resume is detected the same way as in process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/backoff"
)

// Client talks to a drafter server.
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
	logger  *slog.Logger

	// Retries of idempotent reads on transport errors and 503s.
	attempts int
	backoff  backoff.Strategy
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		headers:  make(http.Header),
		logger:   slog.Default(),
		attempts: 1,
		backoff:  backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks the server and its store.
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	return c.get(ctx, "/healthz", &resp)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return backoff.Retry(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debug("drafter request failed, retrying",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	})
}

// do sends one request. A 2xx response is decoded into out when out is
// not nil; anything else is returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("client: new request: %w", err)
	}
	for k, vs := range c.headers {
		req.Header[k] = vs
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body api.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Code != "" {
		e.Code = body.Code
		e.Message = body.Message
		e.Outcome = body.Outcome
		return e
	}
	e.Message = strings.TrimSpace(string(raw))
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusServiceUnavailable
}
