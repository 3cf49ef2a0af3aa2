// Package api exposes an Engine over HTTP.
//
// Routes:
//
//	POST   /v1/executions              start an execution
//	GET    /v1/executions              list executions
//	GET    /v1/executions/{id}         inspect an execution
//	DELETE /v1/executions/{id}         drop an execution
//	POST   /v1/executions/{id}/resume  resume a suspended execution
//	GET    /v1/executions/{id}/events  server-sent lifecycle events (WithStream)
//	GET    /v1/graphs                  list graph topologies
//	GET    /v1/graphs/{name}           describe one graph
//	GET    /healthz                    store health
//	GET    /metrics                    Prometheus metrics (WithGatherer)
//
// Start, resume and inspect answer with an engine.Outcome. Errors answer
// with an ErrorResponse whose code is stable across versions.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/stream"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 4 << 20

// API wires the HTTP handlers of an Engine.
type API struct {
	eng          *engine.Engine
	logger       *slog.Logger
	gatherer     prometheus.Gatherer
	tracing      bool
	tp           trace.TracerProvider
	maxBodyBytes int64
	pingTimeout  time.Duration
	broker       *stream.Broker
	heartbeat    time.Duration
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger. Defaults to the Drafter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// WithTracing wraps the handler in an otelhttp server span per request.
// A nil tp uses the global provider.
func WithTracing(tp trace.TracerProvider) Option {
	return func(a *API) {
		a.tracing = true
		a.tp = tp
	}
}

// WithMaxBodyBytes caps request bodies at n bytes.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBodyBytes = n }
}

// WithStream serves execution events from b. The broker must also be
// registered as an engine extension.
func WithStream(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) { a.heartbeat = d }
}

// New creates an API over eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:          eng,
		logger:       eng.Drafter().Logger(),
		maxBodyBytes: DefaultMaxBodyBytes,
		pingTimeout:  2 * time.Second,
		heartbeat:    DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	r.Use(a.logRequests)

	if !a.tracing {
		return r
	}
	var opts []otelhttp.Option
	if a.tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(a.tp))
	}
	return otelhttp.NewHandler(r, "drafter.api", opts...)
}

// RegisterRoutes registers all routes on r.
func (a *API) RegisterRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/executions", a.startExecution).Methods(http.MethodPost)
	v1.HandleFunc("/executions", a.listExecutions).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}", a.getExecution).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}", a.dropExecution).Methods(http.MethodDelete)
	v1.HandleFunc("/executions/{id}/resume", a.resumeExecution).Methods(http.MethodPost)
	if a.broker != nil {
		v1.HandleFunc("/executions/{id}/events", a.streamExecution).Methods(http.MethodGet)
	}

	v1.HandleFunc("/graphs", a.listGraphs).Methods(http.MethodGet)
	v1.HandleFunc("/graphs/{name}", a.getGraph).Methods(http.MethodGet)

	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}
