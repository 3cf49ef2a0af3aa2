package store

import (
	"context"

	"github.com/xraph/drafter/checkpoint"
)

// Store is the aggregate persistence interface implemented by every
// backend.
type Store interface {
	checkpoint.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
