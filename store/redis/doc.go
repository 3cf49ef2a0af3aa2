// Package redis implements store.Store on Redis. Each checkpoint is a Hash
// holding the encoded checkpoint plus its status and graph, and Sorted Sets
// scored by update time index executions overall, per status and per graph.
//
// Checkpoints are encoded with MessagePack unless WithCodec says otherwise.
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
