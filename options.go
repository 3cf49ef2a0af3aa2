package drafter

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Drafter.
type Option func(*Drafter) error

// Storer is the minimal store interface held by the Drafter.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in the engine layer, which can import the
// checkpoint package without creating a cycle.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// sweepRunner is an internal interface for the retention sweeper lifecycle.
type sweepRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Drafter is the central coordinator holding configuration, the store and
// the background sweeper.
//
// Create one with New() and functional options, then hand it to
// engine.Build to register graphs and run executions.
type Drafter struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	sweeper    sweepRunner

	started bool
}

// New creates a new Drafter with the given options.
func New(opts ...Option) (*Drafter, error) {
	d := &Drafter{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Logger returns the drafter's logger.
func (d *Drafter) Logger() *slog.Logger { return d.logger }

// Store returns the drafter's store.
func (d *Drafter) Store() Storer { return d.store }

// Config returns a copy of the drafter's configuration.
func (d *Drafter) Config() Config { return d.config }

// SetSweeper sets the retention sweeper (called by the engine package).
func (d *Drafter) SetSweeper(s sweepRunner) { d.sweeper = s }

// SetExtensions sets the extension emitter (called by the engine package).
func (d *Drafter) SetExtensions(e extensionEmitter) { d.extensions = e }

// Start launches background work (the retention sweeper). Executions do
// not need Start; they run on the caller's goroutine.
func (d *Drafter) Start(ctx context.Context) error {
	if d.store == nil {
		return ErrNoStore
	}
	if d.sweeper != nil {
		if err := d.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	d.started = true
	return nil
}

// Stop gracefully shuts down the drafter.
func (d *Drafter) Stop(ctx context.Context) error {
	if d.sweeper != nil && d.started {
		if err := d.sweeper.Stop(ctx); err != nil {
			d.logger.Error("sweeper stop error", slog.String("error", err.Error()))
		}
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of nodes of one execution that
// may run concurrently.
func WithConcurrency(n int) Option {
	return func(d *Drafter) error {
		d.config.Concurrency = n
		return nil
	}
}

// WithNodeTimeout sets the default per-node deadline.
func WithNodeTimeout(timeout time.Duration) Option {
	return func(d *Drafter) error {
		d.config.NodeTimeout = timeout
		return nil
	}
}

// WithRetention sets how long suspended and finished checkpoints are kept.
func WithRetention(suspended, finished time.Duration) Option {
	return func(d *Drafter) error {
		d.config.SuspendedTTL = suspended
		d.config.FinishedTTL = finished
		return nil
	}
}

// WithSweepSchedule sets the cron expression of the retention sweeper.
// An empty expression disables sweeping.
func WithSweepSchedule(expr string) Option {
	return func(d *Drafter) error {
		d.config.SweepSchedule = expr
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Drafter) error {
		d.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the drafter.
func WithLogger(l *slog.Logger) Option {
	return func(d *Drafter) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the drafter.
// The store must implement Storer at minimum; typically it will be a
// store.Store which also implements checkpoint.Store.
func WithStore(s Storer) Option {
	return func(d *Drafter) error {
		d.store = s
		return nil
	}
}
