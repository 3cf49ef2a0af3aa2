package llm

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
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/xraph/drafter/backoff"
)

// Defaults match gpt-4o-mini list pricing.
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTimeout     = 60 * time.Second
	DefaultTemperature = 0.1
	DefaultInputPrice  = 0.15 / 1_000_000
	DefaultOutputPrice = 0.6 / 1_000_000
	DefaultMaxAttempts = 3
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	inputPrice  float64
	outputPrice float64
	attempts    int
	backoff     backoff.Strategy
	limiter     *rate.Limiter
	http        *http.Client
	logger      *slog.Logger
}

var _ Transformer = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the API root, e.g. "https://api.openai.com/v1".
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithModel sets the model name.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout sets the deadline of a single attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithPricing sets the price per input and output token.
func WithPricing(input, output float64) ClientOption {
	return func(c *Client) {
		c.inputPrice = input
		c.outputPrice = output
	}
}

// WithRetry sets how many attempts a call gets and the delay between them.
// Only transport errors, 429 and 5xx responses are retried.
func WithRetry(attempts int, s backoff.Strategy) ClientOption {
	return func(c *Client) {
		c.attempts = attempts
		if s != nil {
			c.backoff = s
		}
	}
}

// WithRateLimit caps outgoing calls per second. Zero disables the cap.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a model client. Requests go through an otelhttp
// transport unless WithHTTPClient is given.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		inputPrice:  DefaultInputPrice,
		outputPrice: DefaultOutputPrice,
		attempts:    DefaultMaxAttempts,
		backoff:     backoff.DefaultStrategy(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transform sends p to the model. Each attempt has its own deadline; an
// attempt that runs out of time fails the call with KindTimeout.
func (c *Client) Transform(ctx context.Context, p Prompt) (Completion, error) {
	temp := c.temperature
	if p.Temperature > 0 {
		temp = p.Temperature
	}
	req := chatRequest{Model: c.model, Temperature: temp}
	if p.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: p.User})
	body, err := json.Marshal(req)
	if err != nil {
		return Completion{}, &CallError{Kind: KindDecode, Name: p.Name, Err: err}
	}

	start := time.Now()
	var out Completion
	err = backoff.Retry(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		// Every attempt, retries included, takes a token.
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(c.contextError(ctx, p.Name, err))
			}
		}
		var callErr error
		out, callErr = c.do(ctx, p.Name, body)
		if callErr == nil {
			return nil
		}
		var ce *CallError
		if errors.As(callErr, &ce) && retryable(ce) {
			c.logger.Warn("model call failed, retrying",
				slog.String("call", p.Name),
				slog.String("kind", string(ce.Kind)),
				slog.Int("status", ce.Status),
			)
			return callErr
		}
		return backoff.Permanent(callErr)
	})
	if err != nil {
		c.logger.Error("model call failed",
			slog.String("call", p.Name),
			slog.String("model", c.model),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return Completion{}, err
	}

	c.logger.Debug("model call completed",
		slog.String("call", p.Name),
		slog.String("model", c.model),
		slog.Int("input_tokens", out.InputTokens),
		slog.Int("output_tokens", out.OutputTokens),
		slog.Float64("cost", out.Cost),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (c *Client) do(ctx context.Context, name string, body []byte) (Completion, error) {
	actx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, &CallError{Kind: KindTransport, Name: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if actx.Err() != nil {
			return Completion{}, c.contextError(ctx, name, actx.Err())
		}
		return Completion{}, &CallError{Kind: KindTransport, Name: name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if actx.Err() != nil {
			return Completion{}, c.contextError(ctx, name, actx.Err())
		}
		return Completion{}, &CallError{Kind: KindTransport, Name: name, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		var ae apiError
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return Completion{}, &CallError{Kind: KindStatus, Name: name, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Completion{}, &CallError{Kind: KindDecode, Name: name, Err: err}
	}
	if len(cr.Choices) == 0 {
		return Completion{}, &CallError{Kind: KindDecode, Name: name, Err: errors.New("response has no choices")}
	}

	return Completion{
		Text:         strings.TrimSpace(cr.Choices[0].Message.Content),
		Cost:         float64(cr.Usage.PromptTokens)*c.inputPrice + float64(cr.Usage.CompletionTokens)*c.outputPrice,
		InputTokens:  cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
	}, nil
}

// contextError classifies a context failure. A deadline, whether the
// attempt's or the caller's, is a timeout; a cancellation is not.
func (c *Client) contextError(ctx context.Context, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Kind: KindTimeout, Name: name, Err: fmt.Errorf("no response within %s: %w", c.timeout, err)}
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return &CallError{Kind: KindCanceled, Name: name, Err: err}
}

func retryable(e *CallError) bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	}
	return false
}
