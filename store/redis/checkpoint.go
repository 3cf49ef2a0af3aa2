package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// createScript writes the checkpoint Hash only when the key is absent.
// ARGV holds field/value pairs.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// updateScript writes the checkpoint Hash only when its step field equals
// ARGV[1]. It returns {1, old status, old graph} on success, {0} when the
// step moved and {-1} when the key is missing. ARGV[2:] are field/value
// pairs.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {-1}
end
local step = redis.call('HGET', KEYS[1], 'step') or '0'
if step ~= ARGV[1] then
	return {0}
end
local prev = redis.call('HMGET', KEYS[1], 'status', 'graph')
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return {1, prev[1] or '', prev[2] or ''}
`)

// SaveCheckpoint stores the checkpoint Hash and moves the execution between
// status and graph indexes when either changed.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	execID := cp.ExecutionID.String()
	fields, err := s.hashFields(cp)
	if err != nil {
		return err
	}

	prev, err := s.client.HMGet(ctx, checkpointKey(execID), fieldStatus, fieldGraph).Result()
	if err != nil {
		return fmt.Errorf("drafter/redis: save checkpoint read previous: %w", err)
	}
	oldStatus, _ := prev[0].(string) //nolint:errcheck // nil when missing
	oldGraph, _ := prev[1].(string)  //nolint:errcheck // nil when missing

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, checkpointKey(execID), fields...)
	s.index(ctx, pipe, cp, oldStatus, oldGraph)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("drafter/redis: save checkpoint: %w", err)
	}
	return nil
}

// CreateCheckpoint stores the first checkpoint of an execution.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	fields, err := s.hashFields(cp)
	if err != nil {
		return err
	}
	created, err := createScript.Run(ctx, s.client, []string{checkpointKey(cp.ExecutionID.String())}, fields...).Int64()
	if err != nil {
		return fmt.Errorf("drafter/redis: create checkpoint: %w", err)
	}
	if created == 0 {
		return drafter.ErrExecutionExists
	}
	return s.reindex(ctx, cp, "", "")
}

// UpdateCheckpoint overwrites the checkpoint when its step is still
// prevStep.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, prevStep int64) error {
	fields, err := s.hashFields(cp)
	if err != nil {
		return err
	}
	args := append([]any{strconv.FormatInt(prevStep, 10)}, fields...)
	res, err := updateScript.Run(ctx, s.client, []string{checkpointKey(cp.ExecutionID.String())}, args...).Slice()
	if err != nil {
		return fmt.Errorf("drafter/redis: update checkpoint: %w", err)
	}
	code, _ := res[0].(int64) //nolint:errcheck // script always returns an integer first
	switch code {
	case -1:
		return drafter.ErrCheckpointNotFound
	case 0:
		return drafter.ErrCheckpointConflict
	}
	oldStatus, _ := res[1].(string) //nolint:errcheck // script returns strings
	oldGraph, _ := res[2].(string)  //nolint:errcheck // script returns strings
	return s.reindex(ctx, cp, oldStatus, oldGraph)
}

// hashFields returns the field/value pairs of the checkpoint Hash.
func (s *Store) hashFields(cp *checkpoint.Checkpoint) ([]any, error) {
	data, err := s.codec.Encode(cp)
	if err != nil {
		return nil, fmt.Errorf("drafter/redis: encode checkpoint: %w", err)
	}
	return []any{
		fieldData, data,
		fieldStatus, string(cp.Status),
		fieldGraph, cp.Graph,
		fieldStep, strconv.FormatInt(cp.Step, 10),
		fieldUpdated, strconv.FormatInt(cp.UpdatedAt.UnixMilli(), 10),
	}, nil
}

// index queues the index updates for cp on pipe, dropping the entries of
// the previous status and graph when they changed.
func (s *Store) index(ctx context.Context, pipe goredis.Pipeliner, cp *checkpoint.Checkpoint, oldStatus, oldGraph string) {
	execID := cp.ExecutionID.String()
	member := goredis.Z{Score: float64(cp.UpdatedAt.UnixMilli()), Member: execID}
	if oldStatus != "" && oldStatus != string(cp.Status) {
		pipe.ZRem(ctx, statusIndexKey(checkpoint.Status(oldStatus)), execID)
	}
	if oldGraph != "" && oldGraph != cp.Graph {
		pipe.ZRem(ctx, graphIndexKey(oldGraph), execID)
	}
	pipe.ZAdd(ctx, updatedIndexKey, member)
	pipe.ZAdd(ctx, statusIndexKey(cp.Status), member)
	pipe.ZAdd(ctx, graphIndexKey(cp.Graph), member)
}

func (s *Store) reindex(ctx context.Context, cp *checkpoint.Checkpoint, oldStatus, oldGraph string) error {
	pipe := s.client.TxPipeline()
	s.index(ctx, pipe, cp, oldStatus, oldGraph)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("drafter/redis: index checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint of an execution.
func (s *Store) LoadCheckpoint(ctx context.Context, execID id.ExecutionID) (*checkpoint.Checkpoint, error) {
	return s.load(ctx, execID.String())
}

// DeleteCheckpoint removes the checkpoint of an execution and its index
// entries.
func (s *Store) DeleteCheckpoint(ctx context.Context, execID id.ExecutionID) error {
	key := checkpointKey(execID.String())
	prev, err := s.client.HMGet(ctx, key, fieldStatus, fieldGraph).Result()
	if err != nil {
		return fmt.Errorf("drafter/redis: delete checkpoint read: %w", err)
	}
	status, _ := prev[0].(string) //nolint:errcheck // nil when missing
	graph, _ := prev[1].(string)  //nolint:errcheck // nil when missing
	if status == "" {
		return drafter.ErrCheckpointNotFound
	}
	if err := s.remove(ctx, execID.String(), checkpoint.Status(status), graph); err != nil {
		return fmt.Errorf("drafter/redis: delete checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns checkpoints ordered by most recent update. The
// narrowest index matching the filters is scanned.
func (s *Store) ListCheckpoints(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	index := updatedIndexKey
	switch {
	case opts.Status != "":
		index = statusIndexKey(opts.Status)
	case opts.Graph != "":
		index = graphIndexKey(opts.Graph)
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("drafter/redis: list checkpoints: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, execID := range ids {
		cp, loadErr := s.load(ctx, execID)
		if errors.Is(loadErr, drafter.ErrCheckpointNotFound) {
			continue
		}
		if loadErr != nil {
			return nil, loadErr
		}
		if opts.Status != "" && cp.Status != opts.Status {
			continue
		}
		if opts.Graph != "" && cp.Graph != opts.Graph {
			continue
		}
		out = append(out, cp)
	}

	slices.SortStableFunc(out, func(a, b *checkpoint.Checkpoint) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return id.Compare(a.ExecutionID, b.ExecutionID)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []*checkpoint.Checkpoint{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteCheckpointsBefore removes checkpoints with the given status last
// updated before the cutoff.
func (s *Store) DeleteCheckpointsBefore(ctx context.Context, status checkpoint.Status, before time.Time) (int64, error) {
	ids, err := s.client.ZRangeByScore(ctx, statusIndexKey(status), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("drafter/redis: delete checkpoints scan: %w", err)
	}

	var n int64
	for _, execID := range ids {
		graph, getErr := s.client.HGet(ctx, checkpointKey(execID), fieldGraph).Result()
		if getErr != nil && !errors.Is(getErr, goredis.Nil) {
			return n, fmt.Errorf("drafter/redis: delete checkpoints read: %w", getErr)
		}
		if err := s.remove(ctx, execID, status, graph); err != nil {
			return n, fmt.Errorf("drafter/redis: delete checkpoints: %w", err)
		}
		n++
	}
	return n, nil
}

func (s *Store) load(ctx context.Context, execID string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.HGet(ctx, checkpointKey(execID), fieldData).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, drafter.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("drafter/redis: load checkpoint: %w", err)
	}
	cp, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("drafter/redis: decode checkpoint %s: %w", execID, err)
	}
	return cp, nil
}

func (s *Store) remove(ctx context.Context, execID string, status checkpoint.Status, graph string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, checkpointKey(execID))
	pipe.ZRem(ctx, updatedIndexKey, execID)
	pipe.ZRem(ctx, statusIndexKey(status), execID)
	if graph != "" {
		pipe.ZRem(ctx, graphIndexKey(graph), execID)
	}
	_, err := pipe.Exec(ctx)
	return err
}
