package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/id"
	"github.com/xraph/drafter/store/memory"
	"github.com/xraph/drafter/stream"
)

type sseEvent struct {
	name string
	data string
}

// readEvents collects events until the server closes the stream.
func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return events
}

func newStreamServer(t *testing.T) (*httptest.Server, *stream.Broker) {
	t.Helper()
	d, err := drafter.New(drafter.WithStore(memory.New()), drafter.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("drafter.New: %v", err)
	}
	broker := stream.NewBroker(testLogger())
	eng, err := engine.Build(d, engine.WithGraph(memoGraph), engine.WithExtension(broker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	srv := httptest.NewServer(api.New(eng, api.WithStream(broker), api.WithHeartbeat(50*time.Millisecond)).Handler())
	t.Cleanup(srv.Close)
	return srv, broker
}

func openStream(t *testing.T, ctx context.Context, srv *httptest.Server, execID string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/executions/"+execID+"/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	return resp
}

func TestStreamExecution(t *testing.T) {
	srv, broker := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	execID := id.NewExecutionID().String()
	resp := openStream(t, ctx, srv, execID)

	post := func(path string, body any) {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(string(raw)))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		r.Body.Close()
	}
	post("/v1/executions", api.StartRequest{Graph: "memo", ExecutionID: execID, Fields: map[string]any{"topic": "sse"}})
	post("/v1/executions/"+execID+"/resume", api.ResumeRequest{Value: []string{"ok"}})

	events := readEvents(t, resp)

	var order []string
	for _, e := range events {
		switch stream.EventType(e.name) {
		case stream.EventExecutionStarted, stream.EventExecutionSuspended,
			stream.EventExecutionResumed, stream.EventExecutionCompleted:
			order = append(order, e.name)
		}
	}
	want := []string{"execution.started", "execution.suspended", "execution.resumed", "execution.completed"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("event order = %v, want %v", order, want)
	}

	last := events[len(events)-1]
	var evt stream.Event
	if err := json.Unmarshal([]byte(last.data), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	var data stream.ExecutionEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	if data.ExecutionID != execID || data.Graph != "memo" {
		t.Errorf("data = %+v", data)
	}

	// The handler removes its subscriber when the stream ends.
	deadline := time.Now().Add(2 * time.Second)
	for broker.Topics().SubscriberCount(stream.ExecutionTopic(execID)) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamExecution_FinishedSendsSnapshot(t *testing.T) {
	srv, _ := newStreamServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r, err := srv.Client().Post(srv.URL+"/v1/executions", "application/json",
		strings.NewReader(`{"graph":"memo","fields":{"topic":"outage"}}`))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	out := decode[api.ErrorResponse](t, r)
	r.Body.Close()
	if out.Outcome == nil || out.Outcome.Handle == nil {
		t.Fatalf("expected failed outcome, got %+v", out)
	}

	events := readEvents(t, openStream(t, ctx, srv, out.Outcome.ExecutionID().String()))
	if len(events) != 1 || events[0].name != api.EventSnapshot {
		t.Fatalf("events = %+v", events)
	}
	var snap engine.Outcome
	if err := json.Unmarshal([]byte(events[0].data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Handle == nil || snap.Handle.Status != "failed" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStreamExecution_InvalidID(t *testing.T) {
	srv, _ := newStreamServer(t)
	resp, err := srv.Client().Get(srv.URL + "/v1/executions/not-an-id/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamRouteNeedsBroker(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/v1/executions/"+id.NewExecutionID().String()+"/events", nil)
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want no route", resp.StatusCode)
	}
}
