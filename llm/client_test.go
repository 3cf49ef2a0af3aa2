package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/backoff"
	"github.com/xraph/drafter/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(srv *httptest.Server, opts ...llm.ClientOption) *llm.Client {
	base := []llm.ClientOption{
		llm.WithBaseURL(srv.URL + "/v1/"),
		llm.WithAPIKey("sk-test"),
		llm.WithHTTPClient(srv.Client()),
		llm.WithRetry(3, backoff.NewConstant(time.Millisecond)),
		llm.WithClientLogger(testLogger()),
	}
	return llm.NewClient(append(base, opts...)...)
}

const okBody = `{
  "choices": [{"message": {"role": "assistant", "content": "  Losa de concreto  "}}],
  "usage": {"prompt_tokens": 1000, "completion_tokens": 500}
}`

func TestTransform(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	c := newClient(srv, llm.WithModel("test-model"), llm.WithPricing(0.000001, 0.000002))
	out, err := c.Transform(context.Background(), llm.Prompt{System: "sys", User: "draft", Name: "process_spec"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Text != "Losa de concreto" {
		t.Errorf("text = %q", out.Text)
	}
	if out.InputTokens != 1000 || out.OutputTokens != 500 {
		t.Errorf("tokens = %d/%d", out.InputTokens, out.OutputTokens)
	}
	if diff := cmp.Diff(0.002, out.Cost, cmp.Comparer(func(a, b float64) bool {
		d := a - b
		return d < 1e-12 && d > -1e-12
	})); diff != "" {
		t.Errorf("cost (-want +got):\n%s", diff)
	}

	want := map[string]any{
		"model":       "test-model",
		"temperature": 0.1,
		"messages": []any{
			map[string]any{"role": "system", "content": "sys"},
			map[string]any{"role": "user", "content": "draft"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}
}

func TestTransform_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(srv, llm.WithTimeout(30*time.Millisecond))
	_, err := c.Transform(context.Background(), llm.Prompt{User: "slow", Name: "match"})
	if !errors.Is(err, drafter.ErrExternalTimeout) {
		t.Fatalf("expected ErrExternalTimeout, got %v", err)
	}
	if !errors.Is(err, drafter.ErrExternalCall) || !llm.IsTimeout(err) {
		t.Errorf("timeout does not match the external call sentinels: %v", err)
	}
	var ce *llm.CallError
	if !errors.As(err, &ce) || ce.Kind != llm.KindTimeout || ce.Name != "match" {
		t.Errorf("call error = %+v", ce)
	}
}

func TestTransform_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	if _, err := newClient(srv).Transform(context.Background(), llm.Prompt{User: "x"}); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestTransform_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "bad prompt"}}`)
	}))
	defer srv.Close()

	_, err := newClient(srv).Transform(context.Background(), llm.Prompt{User: "x"})
	var ce *llm.CallError
	if !errors.As(err, &ce) || ce.Kind != llm.KindStatus || ce.Status != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	if ce.Err.Error() != "bad prompt" {
		t.Errorf("message = %q", ce.Err.Error())
	}
	if errors.Is(err, drafter.ErrExternalTimeout) {
		t.Error("status error matched ErrExternalTimeout")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestTransform_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	_, err := newClient(srv).Transform(context.Background(), llm.Prompt{User: "x"})
	var ce *llm.CallError
	if !errors.As(err, &ce) || ce.Kind != llm.KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestTransform_RetriesAreRateLimited(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		n := len(times)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	// One call every 50ms, no burst.
	c := newClient(srv, llm.WithRateLimit(20, 1))
	if _, err := c.Transform(context.Background(), llm.Prompt{User: "x", Name: "limited"}); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("calls = %d, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 40*time.Millisecond {
			t.Errorf("attempt %d came %s after the previous one, want at least the limiter interval", i+1, gap)
		}
	}
}

func TestTransform_Canceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := newClient(srv).Transform(ctx, llm.Prompt{User: "x"})
	var ce *llm.CallError
	if !errors.As(err, &ce) || ce.Kind != llm.KindCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("canceled error does not wrap context.Canceled")
	}
}

func TestTransformerFunc(t *testing.T) {
	var tr llm.Transformer = llm.TransformerFunc(func(_ context.Context, p llm.Prompt) (llm.Completion, error) {
		return llm.Completion{Text: p.User + "!", Cost: 0.01}, nil
	})
	out, err := tr.Transform(context.Background(), llm.Prompt{User: "hola"})
	if err != nil || out.Text != "hola!" || out.Cost != 0.01 {
		t.Fatalf("out = %+v, err = %v", out, err)
	}
}
