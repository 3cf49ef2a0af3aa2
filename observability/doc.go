// Package observability provides a Prometheus metrics extension for
// Drafter. The MetricsExtension implements the execution lifecycle hooks to
// count started, suspended, resumed, completed and failed executions, node
// outcomes, accumulated model cost and swept checkpoints.
//
// For per-node tracing and OpenTelemetry metrics, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
