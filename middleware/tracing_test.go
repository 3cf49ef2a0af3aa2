package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/drafter/graph"
	mw "github.com/xraph/drafter/middleware"
	"github.com/xraph/drafter/state"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	inv := newInvocation()

	_, _ = m(context.Background(), inv, func(context.Context) (state.Update, error) {
		return nil, nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "drafter.node.execute" {
		t.Errorf("span name = %q", spans[0].Name())
	}

	attrMap := make(map[string]any)
	for _, a := range spans[0].Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			attrMap[string(a.Key)] = a.Value.AsString()
		case attribute.BOOL:
			attrMap[string(a.Key)] = a.Value.AsBool()
		}
	}
	expected := map[string]any{
		"drafter.execution.id": inv.ExecutionID.String(),
		"drafter.graph":        "pliego",
		"drafter.node":         "process_spec",
		"drafter.resumed":      true,
	}
	for key, want := range expected {
		if got, ok := attrMap[key]; !ok || got != want {
			t.Errorf("attribute %q = %v, want %v", key, got, want)
		}
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	_, _ = m(context.Background(), newInvocation(), func(context.Context) (state.Update, error) {
		return nil, errors.New("model unavailable")
	})

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "model unavailable" {
		t.Errorf("description = %q", span.Status().Description)
	}
	if len(span.Events()) == 0 {
		t.Error("expected error event recorded")
	}
}

func TestTracing_Suspension_IsNotAnError(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	_, err := m(context.Background(), newInvocation(), func(ctx context.Context) (state.Update, error) {
		_, err := graph.Interrupt(ctx, map[string]any{"action": "review_parameters"})
		return nil, err
	})
	if !graph.IsSuspension(err) {
		t.Fatalf("expected suspension, got %v", err)
	}

	span := sr.Ended()[0]
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
	events := span.Events()
	if len(events) != 1 || events[0].Name != "suspended" {
		t.Errorf("events = %v, want [suspended]", events)
	}
}
