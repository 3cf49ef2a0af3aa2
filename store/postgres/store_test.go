//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store/postgres"
	"github.com/xraph/drafter/store/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("drafter"),
		tcpostgres.WithUsername("drafter"),
		tcpostgres.WithPassword("drafter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := postgres.New(ctx, dsn, postgres.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("postgres.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Migrations are idempotent and serialise across callers.
	g, gctx := errgroup.WithContext(ctx)
	for range 3 {
		g.Go(func() error { return s.Migrate(gctx) })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Migrate: %v", err)
	}
	var n int
	if err := s.Pool().QueryRow(ctx, `SELECT count(*) FROM drafter_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("recorded migrations = %d, want 1", n)
	}

	storetest.Run(t, func(t *testing.T) checkpoint.Store {
		t.Helper()
		if _, err := s.Pool().Exec(ctx, `TRUNCATE drafter_checkpoints`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
