package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store"
)

// Collection name constants.
const (
	colCheckpoints = "drafter_checkpoints"
)

var (
	_ store.Store      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
)

// Store implements store.Store on a MongoDB database.
// The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on db.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all drafter collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		names, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("drafter/mongo: %w: %s indexes: %w", drafter.ErrMigrationFailed, col, err)
		}
		s.logger.Debug("ensured indexes", slog.String("collection", col), slog.Int("count", len(names)))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all drafter collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colCheckpoints: {
			{Keys: bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}},
			// Retention sweeps filter by status and age.
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
			{Keys: bson.D{{Key: "graph", Value: 1}, {Key: "updated_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "checkpoint_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
