package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// SaveCheckpoint upserts the checkpoint document of an execution.
// created_at keeps its first value across overwrites.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set":         checkpointFields(m),
		"$setOnInsert": bson.M{"created_at": m.CreatedAt},
	}
	_, err = s.db.Collection(colCheckpoints).UpdateOne(ctx,
		bson.M{"_id": m.ExecutionID}, update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("drafter/mongo: save checkpoint: %w", err)
	}
	return nil
}

// CreateCheckpoint inserts the first checkpoint of an execution.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(colCheckpoints).InsertOne(ctx, m); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return drafter.ErrExecutionExists
		}
		return fmt.Errorf("drafter/mongo: create checkpoint: %w", err)
	}
	return nil
}

// UpdateCheckpoint overwrites the checkpoint when its step is still
// prevStep. The step is part of the update filter.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, prevStep int64) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	col := s.db.Collection(colCheckpoints)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": m.ExecutionID, "step": prevStep},
		bson.M{"$set": checkpointFields(m)},
	)
	if err != nil {
		return fmt.Errorf("drafter/mongo: update checkpoint: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := col.CountDocuments(ctx, bson.M{"_id": m.ExecutionID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("drafter/mongo: update checkpoint: %w", err)
	}
	if n == 0 {
		return drafter.ErrCheckpointNotFound
	}
	return drafter.ErrCheckpointConflict
}

// LoadCheckpoint returns the checkpoint of an execution.
func (s *Store) LoadCheckpoint(ctx context.Context, execID id.ExecutionID) (*checkpoint.Checkpoint, error) {
	var m checkpointModel
	err := s.db.Collection(colCheckpoints).FindOne(ctx, bson.M{"_id": execID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, drafter.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("drafter/mongo: load checkpoint: %w", err)
	}
	return fromCheckpointModel(&m)
}

// DeleteCheckpoint removes the checkpoint of an execution.
func (s *Store) DeleteCheckpoint(ctx context.Context, execID id.ExecutionID) error {
	res, err := s.db.Collection(colCheckpoints).DeleteOne(ctx, bson.M{"_id": execID.String()})
	if err != nil {
		return fmt.Errorf("drafter/mongo: delete checkpoint: %w", err)
	}
	if res.DeletedCount == 0 {
		return drafter.ErrCheckpointNotFound
	}
	return nil
}

// ListCheckpoints returns checkpoints ordered by most recent update.
func (s *Store) ListCheckpoints(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Graph != "" {
		filter["graph"] = opts.Graph
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "updated_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colCheckpoints).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("drafter/mongo: list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var models []checkpointModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("drafter/mongo: decode checkpoints: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, cp)
	}
	return out, nil
}

// DeleteCheckpointsBefore removes checkpoints with the given status last
// updated before the cutoff.
func (s *Store) DeleteCheckpointsBefore(ctx context.Context, status checkpoint.Status, before time.Time) (int64, error) {
	res, err := s.db.Collection(colCheckpoints).DeleteMany(ctx, bson.M{
		"status":     string(status),
		"updated_at": bson.M{"$lt": before.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("drafter/mongo: delete checkpoints: %w", err)
	}
	return res.DeletedCount, nil
}
