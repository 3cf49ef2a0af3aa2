// Package middleware provides composable middleware for node execution.
//
// A [Middleware] is a function that wraps a node body. Middleware are
// composed into a chain using [Chain] and applied around every node run.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs graph, node, duration and outcome of each run
//   - [ContextLogger]: puts an invocation-scoped logger in the node context
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the node context after its resolved deadline
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-node duration and outcome counters
//
// A node that calls graph.Interrupt returns a suspension error. The
// built-in middleware report it as "suspended" rather than as a failure.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv graph.Invocation, next middleware.Handler) (state.Update, error) {
//	        // pre-processing
//	        u, err := next(ctx)
//	        // post-processing
//	        return u, err
//	    }
//	}
package middleware
