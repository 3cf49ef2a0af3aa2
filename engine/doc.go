// Package engine wires the Drafter subsystems together and provides the
// invocation API: start an execution of a registered graph, resume a
// suspended one, inspect or drop it.
//
// The engine package exists to break an import cycle: the root drafter
// package defines the sentinels and Config imported by every subsystem and
// therefore cannot import them back. Engine sits above the subsystem
// packages and below the application layer.
//
// # Building an Engine
//
//	d, err := drafter.New(
//	    drafter.WithStore(pgStore),
//	    drafter.WithConcurrency(4),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithGraph(docgen.Pliego(model), docgen.Generica(model)),
//	    engine.WithExtension(audithook.New(recorder)),
//	    engine.WithPrometheus(prometheus.DefaultRegisterer),
//	)
//
// # Running
//
//	out, err := eng.Run(ctx, "pliego", map[string]any{"base_spec": spec})
//	for out.Suspended() {
//	    decision := askReviewer(out.Suspension.Payload)
//	    out, err = eng.Resume(ctx, out.Suspension.ExecutionID, decision)
//	}
//	fmt.Println(out.Handle.Document, out.Handle.Cost)
//
// # Options
//
//   - [WithGraph]: register graphs at build time
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the node chain
//   - [WithPrometheus]: export lifecycle metrics to a Prometheus registerer
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
