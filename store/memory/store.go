// Package memory provides an in-memory checkpoint store for development
// and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

var _ checkpoint.Store = (*Store)(nil)

// entry holds an encoded checkpoint plus the columns used for filtering.
// Encoding on save gives callers the same isolation a database would.
type entry struct {
	execID    id.ExecutionID
	graph     string
	status    checkpoint.Status
	step      int64
	updatedAt time.Time
	data      []byte
}

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu          sync.RWMutex
	codec       checkpoint.Codec
	checkpoints map[string]*entry // key: execution id
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		codec:       &checkpoint.JSONCodec{},
		checkpoints: make(map[string]*entry),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// SaveCheckpoint inserts or overwrites the checkpoint of an execution.
func (m *Store) SaveCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	e, err := m.entryOf(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ExecutionID.String()] = e
	return nil
}

// CreateCheckpoint stores the first checkpoint of an execution.
func (m *Store) CreateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	e, err := m.entryOf(cp)
	if err != nil {
		return err
	}
	key := cp.ExecutionID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkpoints[key]; ok {
		return drafter.ErrExecutionExists
	}
	m.checkpoints[key] = e
	return nil
}

// UpdateCheckpoint overwrites the checkpoint if its step is still prevStep.
func (m *Store) UpdateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint, prevStep int64) error {
	e, err := m.entryOf(cp)
	if err != nil {
		return err
	}
	key := cp.ExecutionID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.checkpoints[key]
	if !ok {
		return drafter.ErrCheckpointNotFound
	}
	if cur.step != prevStep {
		return drafter.ErrCheckpointConflict
	}
	m.checkpoints[key] = e
	return nil
}

func (m *Store) entryOf(cp *checkpoint.Checkpoint) (*entry, error) {
	data, err := m.codec.Encode(cp)
	if err != nil {
		return nil, err
	}
	return &entry{
		execID:    cp.ExecutionID,
		graph:     cp.Graph,
		status:    cp.Status,
		step:      cp.Step,
		updatedAt: cp.UpdatedAt,
		data:      data,
	}, nil
}

// LoadCheckpoint returns the checkpoint of an execution.
func (m *Store) LoadCheckpoint(_ context.Context, execID id.ExecutionID) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	e, ok := m.checkpoints[execID.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, drafter.ErrCheckpointNotFound
	}
	return m.codec.Decode(e.data)
}

// DeleteCheckpoint removes the checkpoint of an execution.
func (m *Store) DeleteCheckpoint(_ context.Context, execID id.ExecutionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := execID.String()
	if _, ok := m.checkpoints[key]; !ok {
		return drafter.ErrCheckpointNotFound
	}
	delete(m.checkpoints, key)
	return nil
}

// ListCheckpoints returns checkpoints ordered by most recent update.
func (m *Store) ListCheckpoints(_ context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	matched := make([]*entry, 0, len(m.checkpoints))
	for _, e := range m.checkpoints {
		if opts.Status != "" && e.status != opts.Status {
			continue
		}
		if opts.Graph != "" && e.graph != opts.Graph {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *entry) int {
		if c := b.updatedAt.Compare(a.updatedAt); c != 0 {
			return c
		}
		return id.Compare(a.execID, b.execID)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*checkpoint.Checkpoint{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	out := make([]*checkpoint.Checkpoint, 0, len(matched))
	for _, e := range matched {
		cp, err := m.codec.Decode(e.data)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// DeleteCheckpointsBefore removes checkpoints with the given status last
// updated before the cutoff.
func (m *Store) DeleteCheckpointsBefore(_ context.Context, status checkpoint.Status, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, e := range m.checkpoints {
		if e.status == status && e.updatedAt.Before(before) {
			delete(m.checkpoints, key)
			n++
		}
	}
	return n, nil
}
