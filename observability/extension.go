package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.ExecutionStarted   = (*MetricsExtension)(nil)
	_ ext.NodeCompleted      = (*MetricsExtension)(nil)
	_ ext.NodeFailed         = (*MetricsExtension)(nil)
	_ ext.ExecutionSuspended = (*MetricsExtension)(nil)
	_ ext.ExecutionResumed   = (*MetricsExtension)(nil)
	_ ext.ExecutionCompleted = (*MetricsExtension)(nil)
	_ ext.ExecutionFailed    = (*MetricsExtension)(nil)
	_ ext.CheckpointsSwept   = (*MetricsExtension)(nil)
)

// CostFields are the state fields read as the execution's model cost, in
// order of preference.
var CostFields = []string{"token_cost", "cost"}

// MetricsExtension records lifecycle metrics in Prometheus collectors.
type MetricsExtension struct {
	Executions       *prometheus.CounterVec   // labels: graph, event
	Nodes            *prometheus.CounterVec   // labels: graph, node, status
	NodeDuration     *prometheus.HistogramVec // labels: graph, node
	ExecutionSeconds *prometheus.HistogramVec // labels: graph
	Cost             *prometheus.CounterVec   // labels: graph
	Swept            *prometheus.CounterVec   // labels: status
}

// NewMetricsExtension creates the extension and registers its collectors
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsExtension(reg prometheus.Registerer) (*MetricsExtension, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &MetricsExtension{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "executions_total",
			Help:      "Execution lifecycle events by graph.",
		}, []string{"graph", "event"}),
		Nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "nodes_total",
			Help:      "Node runs by outcome.",
		}, []string{"graph", "node", "status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drafter",
			Name:      "node_duration_seconds",
			Help:      "Duration of completed node runs.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"graph", "node"}),
		ExecutionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drafter",
			Name:      "execution_run_seconds",
			Help:      "Duration of the run that completed an execution.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"graph"}),
		Cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "model_cost_usd_total",
			Help:      "Model cost accumulated by completed executions.",
		}, []string{"graph"}),
		Swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "checkpoints_swept_total",
			Help:      "Expired checkpoints deleted by the sweeper.",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{m.Executions, m.Nodes, m.NodeDuration, m.ExecutionSeconds, m.Cost, m.Swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnExecutionStarted implements ext.ExecutionStarted.
func (m *MetricsExtension) OnExecutionStarted(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.Executions.WithLabelValues(cp.Graph, "started").Inc()
	return nil
}

// OnNodeCompleted implements ext.NodeCompleted.
func (m *MetricsExtension) OnNodeCompleted(_ context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error {
	m.Nodes.WithLabelValues(cp.Graph, node, "completed").Inc()
	m.NodeDuration.WithLabelValues(cp.Graph, node).Observe(elapsed.Seconds())
	return nil
}

// OnNodeFailed implements ext.NodeFailed.
func (m *MetricsExtension) OnNodeFailed(_ context.Context, cp *checkpoint.Checkpoint, node string, _ error) error {
	m.Nodes.WithLabelValues(cp.Graph, node, "failed").Inc()
	return nil
}

// OnExecutionSuspended implements ext.ExecutionSuspended.
func (m *MetricsExtension) OnExecutionSuspended(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.Executions.WithLabelValues(cp.Graph, "suspended").Inc()
	if cp.Position.Suspended != nil {
		m.Nodes.WithLabelValues(cp.Graph, cp.Position.Suspended.Node, "suspended").Inc()
	}
	return nil
}

// OnExecutionResumed implements ext.ExecutionResumed.
func (m *MetricsExtension) OnExecutionResumed(_ context.Context, cp *checkpoint.Checkpoint, _ string, _ any) error {
	m.Executions.WithLabelValues(cp.Graph, "resumed").Inc()
	return nil
}

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (m *MetricsExtension) OnExecutionCompleted(_ context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration) error {
	m.Executions.WithLabelValues(cp.Graph, "completed").Inc()
	m.ExecutionSeconds.WithLabelValues(cp.Graph).Observe(elapsed.Seconds())
	for _, f := range CostFields {
		if c, ok := cp.Values[f].(float64); ok {
			if c > 0 {
				m.Cost.WithLabelValues(cp.Graph).Add(c)
			}
			break
		}
	}
	return nil
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (m *MetricsExtension) OnExecutionFailed(_ context.Context, cp *checkpoint.Checkpoint, _ error) error {
	m.Executions.WithLabelValues(cp.Graph, "failed").Inc()
	return nil
}

// OnCheckpointsSwept implements ext.CheckpointsSwept.
func (m *MetricsExtension) OnCheckpointsSwept(_ context.Context, status checkpoint.Status, count int64) error {
	m.Swept.WithLabelValues(string(status)).Add(float64(count))
	return nil
}
