package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/executor"
	"github.com/xraph/drafter/ext"
	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/id"
	mw "github.com/xraph/drafter/middleware"
	"github.com/xraph/drafter/observability"
	"github.com/xraph/drafter/state"
	"github.com/xraph/drafter/sweeper"
)

// DocumentField is the state field reported as Handle.Document.
const DocumentField = "document"

// Engine wraps a Drafter with typed subsystem access.
// Use Build() to create one from a Drafter.
type Engine struct {
	d          *drafter.Drafter
	extensions *ext.Registry
	graphs     *graph.Registry
	store      checkpoint.Store
	executor   *executor.Executor
	sweeper    *sweeper.Sweeper
	metrics    *observability.MetricsExtension
	logger     *slog.Logger

	pending    []*graph.Graph
	mws        []mw.Middleware
	registerer prometheus.Registerer
	prometheus bool

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's node chain. It runs
// inside the tracing, metrics and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithGraph registers graphs at build time.
func WithGraph(gs ...*graph.Graph) Option {
	return func(eng *Engine) {
		eng.pending = append(eng.pending, gs...)
	}
}

// WithPrometheus registers the observability metrics extension with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(eng *Engine) {
		eng.prometheus = true
		eng.registerer = reg
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Drafter.
// The Drafter's store must implement checkpoint.Store.
func Build(d *drafter.Drafter, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, drafter.ErrNoStore
	}

	cs, ok := store.(checkpoint.Store)
	if !ok {
		return nil, fmt.Errorf("drafter: store does not implement checkpoint.Store")
	}

	eng := &Engine{
		d:          d,
		extensions: ext.NewRegistry(logger),
		graphs:     graph.NewRegistry(),
		store:      cs,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	for _, g := range eng.pending {
		eng.graphs.Register(g)
	}
	eng.pending = nil

	if eng.prometheus {
		m, err := observability.NewMetricsExtension(eng.registerer)
		if err != nil {
			return nil, fmt.Errorf("drafter: register metrics: %w", err)
		}
		eng.metrics = m
		eng.extensions.Register(m)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/drafter"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/drafter"))
	} else {
		metricsMw = mw.Metrics()
	}

	// tracing → metrics → logging → context logger → user middleware;
	// the executor adds recover and timeout innermost.
	defaultMws := []mw.Middleware{
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.ContextLogger(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	config := d.Config()
	eng.executor = executor.New(eng.graphs, cs,
		executor.WithLogger(logger),
		executor.WithEmitter(eng.extensions),
		executor.WithMiddleware(allMws...),
		executor.WithConcurrency(config.Concurrency),
		executor.WithNodeTimeout(config.NodeTimeout),
	)

	if config.SweepSchedule != "" {
		if _, err := sweeper.ParseSchedule(config.SweepSchedule); err != nil {
			return nil, err
		}
		eng.sweeper = sweeper.New(cs,
			sweeper.Policy{SuspendedTTL: config.SuspendedTTL, FinishedTTL: config.FinishedTTL},
			config.SweepSchedule,
			sweeper.WithLogger(logger),
			sweeper.WithEmitter(eng.extensions),
		)
		d.SetSweeper(eng.sweeper)
	}

	// Wire back into the Drafter.
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// Register adds a graph. A graph with the same name and version replaces
// the previous one. New executions use the latest version; suspended ones
// resume on the version they started with.
func (eng *Engine) Register(g *graph.Graph) {
	eng.graphs.Register(g)
	eng.logger.Debug("graph registered",
		slog.String("graph", g.Name()),
		slog.Int("version", g.Version()),
		slog.Int("nodes", g.Len()),
	)
}

// Handle describes an execution that is not waiting for input.
type Handle struct {
	ExecutionID id.ExecutionID    `json:"execution_id"`
	Graph       string            `json:"graph"`
	Status      checkpoint.Status `json:"status"`
	Fields      map[string]any    `json:"fields"`
	Document    string            `json:"document,omitempty"`
	Cost        float64           `json:"cost"`
	Error       string            `json:"error,omitempty"`
}

// Outcome is the result of Run, Resume or Inspect. Exactly one of Handle
// and Suspension is set.
type Outcome struct {
	Handle     *Handle             `json:"handle,omitempty"`
	Suspension *executor.Suspension `json:"suspension,omitempty"`
}

// Suspended reports whether the execution is waiting for a resume value.
func (o *Outcome) Suspended() bool { return o != nil && o.Suspension != nil }

// ExecutionID returns the id of the execution the outcome belongs to.
func (o *Outcome) ExecutionID() id.ExecutionID {
	if o.Suspension != nil {
		return o.Suspension.ExecutionID
	}
	if o.Handle != nil {
		return o.Handle.ExecutionID
	}
	return id.Nil
}

// RunOption configures a single Run call.
type RunOption func(*runOptions)

type runOptions struct {
	execID id.ExecutionID
}

// WithExecutionID runs under a caller-chosen execution id instead of a
// generated one. Starting an id that already has a checkpoint fails with
// drafter.ErrExecutionExists.
func WithExecutionID(execID id.ExecutionID) RunOption {
	return func(o *runOptions) { o.execID = execID }
}

// Run starts a new execution of graphName seeded with initial and drives
// it until it completes, suspends or fails.
//
// A node failure returns the failed Outcome together with the error.
func (eng *Engine) Run(ctx context.Context, graphName string, initial map[string]any, opts ...RunOption) (*Outcome, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	res, err := eng.executor.Run(ctx, graphName, o.execID, initial)
	return outcomeOf(res), err
}

// Resume continues a suspended execution with value. Resuming an execution
// that is not suspended returns an error matching drafter.ErrStaleResume.
func (eng *Engine) Resume(ctx context.Context, execID id.ExecutionID, value any) (*Outcome, error) {
	res, err := eng.executor.Resume(ctx, execID, value)
	return outcomeOf(res), err
}

// Inspect returns the last checkpointed view of an execution.
func (eng *Engine) Inspect(ctx context.Context, execID id.ExecutionID) (*Outcome, error) {
	res, err := eng.executor.Inspect(ctx, execID)
	if err != nil {
		return nil, err
	}
	return outcomeOf(res), nil
}

// Drop abandons an execution by deleting its checkpoint. A later resume of
// it fails as stale.
func (eng *Engine) Drop(ctx context.Context, execID id.ExecutionID) error {
	if err := eng.store.DeleteCheckpoint(ctx, execID); err != nil {
		return err
	}
	eng.logger.Info("execution dropped", slog.String("execution_id", execID.String()))
	return nil
}

// List returns checkpoint summaries, most recently updated first.
func (eng *Engine) List(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	return eng.store.ListCheckpoints(ctx, opts)
}

// Topologies describes the latest version of every registered graph.
func (eng *Engine) Topologies() []graph.Topology {
	gs := eng.graphs.List()
	out := make([]graph.Topology, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.Describe())
	}
	return out
}

// Start starts the Drafter's background work (the retention sweeper).
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop gracefully shuts down the Drafter.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}

// Ping checks the store.
func (eng *Engine) Ping(ctx context.Context) error {
	s := eng.d.Store()
	if s == nil {
		return drafter.ErrNoStore
	}
	return s.Ping(ctx)
}

// Drafter returns the underlying Drafter.
func (eng *Engine) Drafter() *drafter.Drafter { return eng.d }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Graphs returns the graph registry.
func (eng *Engine) Graphs() *graph.Registry { return eng.graphs }

// Executor returns the executor.
func (eng *Engine) Executor() *executor.Executor { return eng.executor }

// Sweeper returns the retention sweeper, or nil when sweeping is disabled.
func (eng *Engine) Sweeper() *sweeper.Sweeper { return eng.sweeper }

// Metrics returns the Prometheus extension, or nil without WithPrometheus.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.metrics }

// IsStale reports whether err is a resume of an execution that is not
// waiting for one.
func IsStale(err error) bool { return errors.Is(err, drafter.ErrStaleResume) }

func outcomeOf(res *executor.Result) *Outcome {
	if res == nil {
		return nil
	}
	if res.Suspension != nil {
		return &Outcome{Suspension: res.Suspension}
	}
	return &Outcome{Handle: handleOf(res)}
}

func handleOf(res *executor.Result) *Handle {
	return &Handle{
		ExecutionID: res.ExecutionID,
		Graph:       res.Graph,
		Status:      res.Status,
		Fields:      res.State.Values(),
		Document:    res.State.String(DocumentField),
		Cost:        costOf(res.State),
		Error:       res.Error,
	}
}

func costOf(s state.Snapshot) float64 {
	for _, f := range observability.CostFields {
		if _, ok := s.Get(f); ok {
			return s.Float(f)
		}
	}
	return 0
}
