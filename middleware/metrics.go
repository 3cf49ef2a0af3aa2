package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// meterName is the instrumentation scope name for drafter metrics.
const meterName = "github.com/xraph/drafter"

// Metrics returns middleware that records per-node execution metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - drafter.node.duration (Float64Histogram): execution time in seconds,
//     with attributes: graph, node, status ("ok", "suspended" or "error")
//   - drafter.node.executions (Int64Counter): total node runs,
//     with the same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"drafter.node.duration",
		metric.WithDescription("Duration of node execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"drafter.node.executions",
		metric.WithDescription("Total number of node executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		start := time.Now()
		u, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("graph", inv.Graph),
			attribute.String("node", inv.Node),
			attribute.String("status", outcome(err)),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		return u, err
	}
}
