package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
	"github.com/xraph/drafter/observability"
)

func newTestExtension(t *testing.T) *observability.MetricsExtension {
	t.Helper()
	m, err := observability.NewMetricsExtension(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetricsExtension: %v", err)
	}
	return m
}

func newTestCheckpoint() *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ExecutionID: id.NewExecutionID(),
		Graph:       "pliego",
		Values:      map[string]any{"token_cost": 0.04},
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	if got := newTestExtension(t).Name(); got != "observability-metrics" {
		t.Errorf("Name() = %q", got)
	}
}

func TestMetricsExtension_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := observability.NewMetricsExtension(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := observability.NewMetricsExtension(reg); err == nil {
		t.Error("expected AlreadyRegisteredError")
	}
}

func TestMetricsExtension_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestExtension(t)
	cp := newTestCheckpoint()

	_ = m.OnExecutionStarted(ctx, cp)
	_ = m.OnNodeCompleted(ctx, cp, "clean_and_capture", 20*time.Millisecond)
	cp.Position.Suspended = &checkpoint.Suspended{Node: "add_parameters"}
	_ = m.OnExecutionSuspended(ctx, cp)
	_ = m.OnExecutionResumed(ctx, cp, "add_parameters", []any{})
	_ = m.OnNodeFailed(ctx, cp, "process_spec", errors.New("timeout"))
	_ = m.OnExecutionCompleted(ctx, cp, time.Second)
	_ = m.OnExecutionFailed(ctx, newTestCheckpoint(), errors.New("boom"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"started", testutil.ToFloat64(m.Executions.WithLabelValues("pliego", "started")), 1},
		{"suspended", testutil.ToFloat64(m.Executions.WithLabelValues("pliego", "suspended")), 1},
		{"resumed", testutil.ToFloat64(m.Executions.WithLabelValues("pliego", "resumed")), 1},
		{"completed", testutil.ToFloat64(m.Executions.WithLabelValues("pliego", "completed")), 1},
		{"failed", testutil.ToFloat64(m.Executions.WithLabelValues("pliego", "failed")), 1},
		{"node completed", testutil.ToFloat64(m.Nodes.WithLabelValues("pliego", "clean_and_capture", "completed")), 1},
		{"node suspended", testutil.ToFloat64(m.Nodes.WithLabelValues("pliego", "add_parameters", "suspended")), 1},
		{"node failed", testutil.ToFloat64(m.Nodes.WithLabelValues("pliego", "process_spec", "failed")), 1},
		{"cost", testutil.ToFloat64(m.Cost.WithLabelValues("pliego")), 0.04},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if n := testutil.CollectAndCount(m.NodeDuration); n != 1 {
		t.Errorf("node duration series = %d, want 1", n)
	}
}

func TestMetricsExtension_CostFallsBackToCostField(t *testing.T) {
	m := newTestExtension(t)
	cp := &checkpoint.Checkpoint{Graph: "generica", Values: map[string]any{"cost": 0.5}}
	_ = m.OnExecutionCompleted(context.Background(), cp, time.Second)
	if got := testutil.ToFloat64(m.Cost.WithLabelValues("generica")); got != 0.5 {
		t.Errorf("cost = %v, want 0.5", got)
	}
}

func TestMetricsExtension_Swept(t *testing.T) {
	m := newTestExtension(t)
	_ = m.OnCheckpointsSwept(context.Background(), checkpoint.StatusSuspended, 3)
	_ = m.OnCheckpointsSwept(context.Background(), checkpoint.StatusSuspended, 2)
	if got := testutil.ToFloat64(m.Swept.WithLabelValues("suspended")); got != 5 {
		t.Errorf("swept = %v, want 5", got)
	}
}
