package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/drafter/checkpoint"
)

// Emitter receives sweep results.
// ext.Registry satisfies this interface via EmitCheckpointsSwept.
type Emitter interface {
	EmitCheckpointsSwept(ctx context.Context, status checkpoint.Status, count int64)
}

// Deleter is the part of checkpoint.Store the sweeper needs.
type Deleter interface {
	DeleteCheckpointsBefore(ctx context.Context, status checkpoint.Status, before time.Time) (int64, error)
}

// Policy says how long checkpoints of each status are kept.
type Policy struct {
	SuspendedTTL time.Duration
	FinishedTTL  time.Duration
}

// ttls maps every status to its retention. A zero TTL keeps checkpoints
// of that status forever.
func (p Policy) ttls() []statusTTL {
	return []statusTTL{
		{checkpoint.StatusSuspended, p.SuspendedTTL},
		{checkpoint.StatusRunning, p.SuspendedTTL},
		{checkpoint.StatusCompleted, p.FinishedTTL},
		{checkpoint.StatusFailed, p.FinishedTTL},
	}
}

type statusTTL struct {
	status checkpoint.Status
	ttl    time.Duration
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithEmitter sets the sweep event sink.
func WithEmitter(e Emitter) Option {
	return func(s *Sweeper) { s.emitter = e }
}

// WithClock overrides the time source used for cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// parser supports standard 5-field cron and descriptors like "@every 1h".
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return parser.Parse(expr)
}

// Sweeper runs Sweep on a schedule.
type Sweeper struct {
	store    Deleter
	policy   Policy
	schedule string
	emitter  Emitter
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cronlib.Cron
}

// New creates a sweeper. schedule is a cron expression; Start fails on an
// invalid one.
func New(store Deleter, policy Policy, schedule string, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		policy:   policy,
		schedule: schedule,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules sweeps. It returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper: already started")
	}
	sched, err := ParseSchedule(s.schedule)
	if err != nil {
		return fmt.Errorf("sweeper: parse schedule %q: %w", s.schedule, err)
	}
	c := cronlib.New(cronlib.WithParser(parser))
	c.Schedule(sched, cronlib.FuncJob(func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("checkpoint sweep failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	s.cron = c
	s.logger.Info("checkpoint sweeper started",
		slog.String("schedule", s.schedule),
		slog.Duration("suspended_ttl", s.policy.SuspendedTTL),
		slog.Duration("finished_ttl", s.policy.FinishedTTL),
	)
	return nil
}

// Stop cancels future sweeps and waits for a running one, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("checkpoint sweeper stopped")
	return nil
}

// Sweep deletes every expired checkpoint once and returns how many were
// removed per status. It keeps going after a failed status and returns
// the joined errors.
func (s *Sweeper) Sweep(ctx context.Context) (map[checkpoint.Status]int64, error) {
	now := s.now()
	removed := make(map[checkpoint.Status]int64)
	var errs []error
	for _, st := range s.policy.ttls() {
		if st.ttl <= 0 {
			continue
		}
		n, err := s.store.DeleteCheckpointsBefore(ctx, st.status, now.Add(-st.ttl))
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s checkpoints: %w", st.status, err))
			continue
		}
		if n == 0 {
			continue
		}
		removed[st.status] = n
		s.logger.Info("expired checkpoints deleted",
			slog.String("status", string(st.status)),
			slog.Int64("count", n),
		)
		if s.emitter != nil {
			s.emitter.EmitCheckpointsSwept(ctx, st.status, n)
		}
	}
	return removed, errors.Join(errs...)
}
