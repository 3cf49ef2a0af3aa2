package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store"
	"github.com/xraph/drafter/store/migrations"
)

var (
	_ store.Store      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
)

// Store keeps checkpoints in PostgreSQL through bun models. It shares the
// schema of the postgres store, so either can open the other's database.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps db. The caller owns db; Close leaves it open.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate applies pending schema migrations in a single transaction.
func (s *Store) Migrate(ctx context.Context) error {
	var applied []string
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		applied, err = migrations.Apply(ctx, txConn{tx})
		return err
	})
	if err != nil {
		return fmt.Errorf("drafter/bun: migrate: %w", err)
	}
	for _, name := range applied {
		s.logger.Info("applied migration", slog.String("file", name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

type txConn struct{ tx bun.Tx }

func (c txConn) Exec(ctx context.Context, query string) error {
	_, err := c.tx.ExecContext(ctx, query)
	return err
}

func (c txConn) Strings(ctx context.Context, query string) ([]string, error) {
	var out []string
	if err := c.tx.NewRaw(query).Scan(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
