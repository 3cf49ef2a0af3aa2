package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/backoff"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/client"
	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
	"github.com/xraph/drafter/store/memory"
	"github.com/xraph/drafter/stream"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvalGraph() *graph.Graph {
	return graph.Must(graph.Definition{
		Name: "approval",
		Schema: state.MustSchema(
			state.String("subject"),
			state.Bool("approved"),
			state.String("document"),
			state.Counter("cost"),
		),
		Nodes: []graph.Node{
			{Name: "ask", Func: func(ctx context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
				ok, err := graph.InterruptAs[bool](ctx, map[string]any{"action": "approve", "subject": s.String("subject")})
				if err != nil {
					return nil, err
				}
				return state.Update{"approved": ok, "cost": 0.5}, nil
			}},
			{Name: "write", Func: func(_ context.Context, s state.Snapshot, _ graph.Invocation) (state.Update, error) {
				if s.Bool("approved") {
					return state.Update{"document": s.String("subject") + ": approved"}, nil
				}
				return state.Update{"document": s.String("subject") + ": rejected"}, nil
			}},
		},
		Edges: []graph.Edge{{From: "ask", To: "write"}},
	})
}

// setupClientTest serves a memory-backed engine over httptest and returns
// a client for it.
func setupClientTest(t *testing.T, opts ...client.Option) (*client.Client, *engine.Engine) {
	t.Helper()

	d, err := drafter.New(
		drafter.WithStore(memory.New()),
		drafter.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("drafter.New: %v", err)
	}
	broker := stream.NewBroker(testLogger())
	eng, err := engine.Build(d, engine.WithGraph(approvalGraph()), engine.WithExtension(broker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	ts := httptest.NewServer(api.New(eng, api.WithLogger(testLogger()), api.WithStream(broker)).Handler())
	t.Cleanup(ts.Close)

	opts = append([]client.Option{client.WithLogger(testLogger())}, opts...)
	return client.New(ts.URL, opts...), eng
}

// ── Executions ────────────────────────────────────────

func TestStartResume(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	out, err := c.Start(ctx, "approval", map[string]any{"subject": "budget"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !out.Suspended() || out.Suspension.Node != "ask" {
		t.Fatalf("expected suspension at ask, got %+v", out)
	}
	payload, _ := out.Suspension.Payload.(map[string]any)
	if payload["subject"] != "budget" {
		t.Errorf("payload = %v", out.Suspension.Payload)
	}

	execID := out.ExecutionID().String()
	out, err = c.Resume(ctx, execID, true)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.Suspended() {
		t.Fatalf("expected completion, suspended at %s", out.Suspension.Node)
	}
	if out.Handle.Document != "budget: approved" || out.Handle.Cost != 0.5 {
		t.Errorf("handle = %+v", out.Handle)
	}

	_, err = c.Resume(ctx, execID, false)
	if !errors.Is(err, drafter.ErrStaleResume) {
		t.Fatalf("expected ErrStaleResume, got %v", err)
	}
	var apiErr *client.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected a 409 *client.Error, got %v", err)
	}
}

func TestStart_WithExecutionID(t *testing.T) {
	c, eng := setupClientTest(t)
	ctx := context.Background()

	out, err := c.Start(ctx, "approval", map[string]any{"subject": "a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	execID := out.ExecutionID()

	_, err = c.Start(ctx, "approval", nil, client.WithExecutionID(execID.String()))
	if !errors.Is(err, drafter.ErrExecutionExists) {
		t.Fatalf("expected ErrExecutionExists, got %v", err)
	}

	inspected, err := eng.Inspect(ctx, execID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !inspected.Suspended() {
		t.Error("original execution should still be suspended")
	}
}

func TestStart_Errors(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, "nope", nil); !errors.Is(err, drafter.ErrGraphNotFound) {
		t.Errorf("unknown graph: got %v", err)
	}
	if _, err := c.Start(ctx, "approval", map[string]any{"colour": "red"}); !errors.Is(err, drafter.ErrUnknownField) {
		t.Errorf("unknown field: got %v", err)
	}
}

func TestGetListDrop(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	var ids []string
	for _, subject := range []string{"a", "b", "c"} {
		out, err := c.Start(ctx, "approval", map[string]any{"subject": subject})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		ids = append(ids, out.ExecutionID().String())
	}
	if _, err := c.Resume(ctx, ids[2], false); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	got, err := c.Get(ctx, ids[2])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Suspended() || got.Handle.Document != "c: rejected" {
		t.Errorf("Get = %+v", got)
	}

	suspended, err := c.List(ctx, client.ListOpts{Status: checkpoint.StatusSuspended})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(suspended) != 2 {
		t.Errorf("suspended = %d, want 2", len(suspended))
	}
	page, err := c.List(ctx, client.ListOpts{Graph: "approval", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("page = %d, want 1", len(page))
	}

	if err := c.Drop(ctx, ids[0]); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := c.Get(ctx, ids[0]); !errors.Is(err, drafter.ErrCheckpointNotFound) {
		t.Errorf("Get after drop: got %v", err)
	}
	if err := c.Drop(ctx, ids[0]); !errors.Is(err, drafter.ErrCheckpointNotFound) {
		t.Errorf("second Drop: got %v", err)
	}
}

// ── Events ────────────────────────────────────────

func TestWatch(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := c.Start(ctx, "approval", map[string]any{"subject": "roof"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	execID := out.ExecutionID().String()

	subscribed := make(chan struct{})
	done := make(chan error, 1)
	var types []stream.EventType
	go func() {
		done <- c.Watch(ctx, execID, func(ev client.WatchEvent) error {
			if ev.Snapshot != nil {
				if !ev.Snapshot.Suspended() {
					return fmt.Errorf("snapshot not suspended: %+v", ev.Snapshot.Handle)
				}
				close(subscribed)
				return nil
			}
			types = append(types, ev.Event.Type)
			return nil
		})
	}()

	select {
	case <-subscribed:
	case err := <-done:
		t.Fatalf("Watch returned early: %v", err)
	}
	if _, err := c.Resume(ctx, execID, true); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if len(types) == 0 || types[0] != stream.EventExecutionResumed {
		t.Fatalf("events = %v, want resumed first", types)
	}
	if last := types[len(types)-1]; last != stream.EventExecutionCompleted {
		t.Errorf("last event = %s, want completed", last)
	}
}

func TestWatch_Stop(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	out, err := c.Start(ctx, "approval", map[string]any{"subject": "wall"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	err = c.Watch(ctx, out.ExecutionID().String(), func(client.WatchEvent) error { return client.ErrStopWatch })
	if err != nil {
		t.Errorf("Watch: %v", err)
	}
}

// ── Graphs and health ────────────────────────────────

func TestGraphs(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	all, err := c.Graphs(ctx)
	if err != nil {
		t.Fatalf("Graphs: %v", err)
	}
	if len(all) != 1 || all[0].Name != "approval" {
		t.Fatalf("Graphs = %+v", all)
	}

	one, err := c.Graph(ctx, "approval")
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if one.Entry != "ask" || one.Terminal != "write" {
		t.Errorf("Graph = %+v", one)
	}
	if _, err := c.Graph(ctx, "nope"); !errors.Is(err, drafter.ErrGraphNotFound) {
		t.Errorf("missing graph: got %v", err)
	}
}

func TestHealth(t *testing.T) {
	c, _ := setupClientTest(t)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

// ── Transport behaviour ──────────────────────────────

func TestRetry_ReadsOn503(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer ts.Close()

	c := client.New(ts.URL,
		client.WithLogger(testLogger()),
		client.WithRetry(3, backoff.NewConstant(time.Millisecond)),
	)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("hits = %d, want 3", n)
	}
}

func TestRetry_NeverRetriesWrites(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := client.New(ts.URL,
		client.WithLogger(testLogger()),
		client.WithRetry(5, backoff.NewConstant(time.Millisecond)),
	)
	_, err := c.Start(context.Background(), "approval", nil)
	var apiErr *client.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected a 503 *client.Error, got %v", err)
	}
	if apiErr.Message != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("message = %q", apiErr.Message)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
}

func TestWithHeader(t *testing.T) {
	got := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer ts.Close()

	c := client.New(ts.URL, client.WithHeader("Authorization", "Bearer token"))
	if _, err := c.Graphs(context.Background()); err != nil {
		t.Fatalf("Graphs: %v", err)
	}
	if h := <-got; h != "Bearer token" {
		t.Errorf("Authorization = %q", h)
	}
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := client.New(url)
	err := c.Health(context.Background())
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *client.TransportError, got %v", err)
	}
}

func TestErrorIs_Timeout(t *testing.T) {
	err := &client.Error{StatusCode: http.StatusGatewayTimeout, Code: api.CodeExternalTimeout}
	if !errors.Is(err, drafter.ErrExternalTimeout) || !errors.Is(err, drafter.ErrExternalCall) {
		t.Error("timeout code should match both external call sentinels")
	}
	if errors.Is(err, drafter.ErrStaleResume) {
		t.Error("timeout code should not match stale resume")
	}
}
