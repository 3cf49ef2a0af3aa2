package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store"
	bunstore "github.com/xraph/drafter/store/bun"
	"github.com/xraph/drafter/store/memory"
	mongostore "github.com/xraph/drafter/store/mongo"
	"github.com/xraph/drafter/store/postgres"
	redisstore "github.com/xraph/drafter/store/redis"
)

// openStore connects the configured backend and runs its migrations. The
// returned release func closes connections the store does not own.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, func(), error) {
	logger = logger.With(slog.String("store", cfg.StoreBackend))
	noop := func() {}

	var (
		s       store.Store
		release = noop
	)
	switch cfg.StoreBackend {
	case "memory":
		s = memory.New()

	case "postgres":
		pg, err := postgres.New(ctx, cfg.StoreDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}
		s = pg

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.StoreDSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s = bunstore.New(db, bunstore.WithLogger(logger))
		release = func() { _ = db.Close() }

	case "redis":
		opts, err := goredis.ParseURL(cfg.StoreDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("parse redis dsn: %w", err)
		}
		client := goredis.NewClient(opts)
		s = redisstore.New(client,
			redisstore.WithLogger(logger),
			redisstore.WithCodec(checkpoint.GetCodec(cfg.StoreCodec)),
		)
		release = func() { _ = client.Close() }

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.StoreDSN))
		if err != nil {
			return nil, noop, fmt.Errorf("connect mongo: %w", err)
		}
		s = mongostore.New(client.Database(cfg.StoreDB), mongostore.WithLogger(logger))
		release = func() { _ = client.Disconnect(context.Background()) }

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if err := s.Ping(ctx); err != nil {
		release()
		return nil, noop, fmt.Errorf("ping %s store: %w", cfg.StoreBackend, err)
	}
	if err := s.Migrate(ctx); err != nil {
		release()
		return nil, noop, fmt.Errorf("migrate %s store: %w", cfg.StoreBackend, err)
	}
	logger.Info("store ready")
	return s, release, nil
}
