package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store"
)

// Compile-time interface checks.
var (
	_ store.Store      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCodec sets the checkpoint codec. Defaults to MessagePack.
func WithCodec(c checkpoint.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	codec  checkpoint.Codec
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		codec:  checkpoint.GetCodec(checkpoint.CodecNameMsgpack),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
