// Package mongo implements store.Store on MongoDB. Each execution is one
// document in the drafter_checkpoints collection keyed by execution id.
//
// The caller owns the *mongo.Client lifecycle; the store never disconnects
// it:
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("drafter"))
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo
