package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// tracerName is the instrumentation scope name for drafter tracing.
const tracerName = "github.com/xraph/drafter"

// Tracing returns middleware that wraps node execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: drafter.execution.id, drafter.graph,
// drafter.node, drafter.resumed. A suspension ends the span with status Ok
// and a "suspended" event; any other error sets codes.Error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		ctx, span := tracer.Start(ctx, "drafter.node.execute",
			trace.WithAttributes(
				attribute.String("drafter.execution.id", inv.ExecutionID.String()),
				attribute.String("drafter.graph", inv.Graph),
				attribute.String("drafter.node", inv.Node),
				attribute.Bool("drafter.resumed", inv.Resumed),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		u, err := next(ctx)
		switch outcome(err) {
		case "ok":
			span.SetStatus(codes.Ok, "")
		case "suspended":
			span.AddEvent("suspended")
			span.SetStatus(codes.Ok, "")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return u, err
	}
}
