// Package storetest is a conformance suite run against every checkpoint
// store backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) checkpoint.Store

var cmpOpts = cmp.Options{
	cmp.Comparer(func(a, b id.ID) bool { return a.String() == b.String() }),
	cmpopts.EquateApproxTime(time.Millisecond),
	cmpopts.EquateEmpty(),
}

// NewCheckpoint returns a populated suspended checkpoint.
func NewCheckpoint(graph string, status checkpoint.Status, updated time.Time) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ID:           id.NewCheckpointID(),
		ExecutionID:  id.NewExecutionID(),
		Graph:        graph,
		GraphVersion: 1,
		Status:       status,
		Position: checkpoint.Position{
			Completed: []string{"clean_and_capture", "parse_parameters"},
			Pending:   []string{"process_spec"},
			Suspended: &checkpoint.Suspended{
				Node: "add_parameters",
				Payload: map[string]any{
					"action": "review_parameters",
					"items": []any{
						map[string]any{"parametro": "Resistencia", "valor": "210 kg/cm2"},
						map[string]any{"parametro": "Espesor", "valor": 0.15},
					},
				},
				Resumes: []any{[]any{true, false}},
			},
		},
		Values: map[string]any{
			"document":   "# Losa",
			"token_cost": 0.04,
			"items":      []any{"a", map[string]any{"n": 2.0}},
			"approved":   true,
			"empty":      nil,
		},
		StateVersion: 6,
		Step:         6,
		CreatedAt:    updated.Add(-time.Minute).UTC().Truncate(time.Millisecond),
		UpdatedAt:    updated.UTC().Truncate(time.Millisecond),
	}
}

// Run runs the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now())

		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
		got, err := s.LoadCheckpoint(ctx, cp.ExecutionID)
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if diff := cmp.Diff(cp, got, cmpOpts); diff != "" {
			t.Errorf("checkpoint mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusRunning, time.Now())
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}

		cp.Status = checkpoint.StatusCompleted
		cp.Position.Suspended = nil
		cp.Values["token_cost"] = 0.05
		cp.Step++
		cp.UpdatedAt = cp.UpdatedAt.Add(time.Second)
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint overwrite: %v", err)
		}

		got, err := s.LoadCheckpoint(ctx, cp.ExecutionID)
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if got.Status != checkpoint.StatusCompleted || got.Position.Suspended != nil || got.Step != cp.Step {
			t.Errorf("overwrite not visible: %+v", got)
		}
		list, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{})
		if err != nil {
			t.Fatalf("ListCheckpoints: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("got %d checkpoints for one execution, want 1", len(list))
		}
	})

	t.Run("CreateOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusRunning, time.Now())

		if err := s.CreateCheckpoint(ctx, cp); err != nil {
			t.Fatalf("CreateCheckpoint: %v", err)
		}
		again := *cp
		again.Graph = "generica"
		if err := s.CreateCheckpoint(ctx, &again); !errors.Is(err, drafter.ErrExecutionExists) {
			t.Fatalf("expected ErrExecutionExists, got %v", err)
		}
		got, err := s.LoadCheckpoint(ctx, cp.ExecutionID)
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if diff := cmp.Diff(cp, got, cmpOpts); diff != "" {
			t.Errorf("first checkpoint changed (-want +got):\n%s", diff)
		}
	})

	t.Run("UpdateComparesStep", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now())
		if err := s.CreateCheckpoint(ctx, cp); err != nil {
			t.Fatalf("CreateCheckpoint: %v", err)
		}

		prev := cp.Step
		cp.Step++
		cp.Status = checkpoint.StatusRunning
		cp.Position.Suspended = nil
		cp.UpdatedAt = cp.UpdatedAt.Add(time.Second)
		if err := s.UpdateCheckpoint(ctx, cp, prev); err != nil {
			t.Fatalf("UpdateCheckpoint: %v", err)
		}

		// A second writer that also read step prev loses.
		late := *cp
		late.Status = checkpoint.StatusCompleted
		if err := s.UpdateCheckpoint(ctx, &late, prev); !errors.Is(err, drafter.ErrCheckpointConflict) {
			t.Fatalf("expected ErrCheckpointConflict, got %v", err)
		}
		got, err := s.LoadCheckpoint(ctx, cp.ExecutionID)
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if got.Status != checkpoint.StatusRunning || got.Step != cp.Step {
			t.Errorf("status/step = %s/%d, want running/%d", got.Status, got.Step, cp.Step)
		}
		running, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{Status: checkpoint.StatusRunning})
		if err != nil {
			t.Fatalf("ListCheckpoints: %v", err)
		}
		if len(running) != 1 {
			t.Errorf("running = %d, want 1", len(running))
		}

		missing := NewCheckpoint("pliego", checkpoint.StatusRunning, time.Now())
		if err := s.UpdateCheckpoint(ctx, missing, 0); !errors.Is(err, drafter.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound, got %v", err)
		}
	})

	t.Run("UpdateSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now())
		if err := s.CreateCheckpoint(ctx, cp); err != nil {
			t.Fatalf("CreateCheckpoint: %v", err)
		}

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := *cp
				next.Step = cp.Step + 1
				next.Status = checkpoint.StatusRunning
				err := s.UpdateCheckpoint(ctx, &next, cp.Step)
				switch {
				case err == nil:
					mu.Lock()
					wins++
					mu.Unlock()
				case !errors.Is(err, drafter.ErrCheckpointConflict):
					t.Errorf("UpdateCheckpoint: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("%d writers won, want 1", wins)
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadCheckpoint(context.Background(), id.NewExecutionID())
		if !errors.Is(err, drafter.ErrCheckpointNotFound) {
			t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cp := NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now())
		if err := s.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
		if err := s.DeleteCheckpoint(ctx, cp.ExecutionID); err != nil {
			t.Fatalf("DeleteCheckpoint: %v", err)
		}
		if _, err := s.LoadCheckpoint(ctx, cp.ExecutionID); !errors.Is(err, drafter.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound after delete, got %v", err)
		}
		if err := s.DeleteCheckpoint(ctx, cp.ExecutionID); !errors.Is(err, drafter.ErrCheckpointNotFound) {
			t.Errorf("expected ErrCheckpointNotFound deleting twice, got %v", err)
		}
	})

	t.Run("ListFiltersAndOrders", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		older := NewCheckpoint("pliego", checkpoint.StatusSuspended, base)
		newer := NewCheckpoint("pliego", checkpoint.StatusSuspended, base.Add(10*time.Minute))
		other := NewCheckpoint("generica", checkpoint.StatusCompleted, base.Add(5*time.Minute))
		for _, cp := range []*checkpoint.Checkpoint{older, newer, other} {
			if err := s.SaveCheckpoint(ctx, cp); err != nil {
				t.Fatalf("SaveCheckpoint: %v", err)
			}
		}

		all, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{})
		if err != nil {
			t.Fatalf("ListCheckpoints: %v", err)
		}
		gotIDs := make([]string, 0, len(all))
		for _, cp := range all {
			gotIDs = append(gotIDs, cp.ExecutionID.String())
		}
		wantIDs := []string{newer.ExecutionID.String(), other.ExecutionID.String(), older.ExecutionID.String()}
		if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}

		suspended, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{Status: checkpoint.StatusSuspended})
		if err != nil {
			t.Fatalf("ListCheckpoints by status: %v", err)
		}
		if len(suspended) != 2 {
			t.Errorf("suspended = %d, want 2", len(suspended))
		}

		byGraph, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{Graph: "generica"})
		if err != nil {
			t.Fatalf("ListCheckpoints by graph: %v", err)
		}
		if len(byGraph) != 1 || byGraph[0].Graph != "generica" {
			t.Errorf("graph filter returned %d", len(byGraph))
		}

		page, err := s.ListCheckpoints(ctx, checkpoint.ListOpts{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListCheckpoints page: %v", err)
		}
		if len(page) != 1 || page[0].ExecutionID.String() != other.ExecutionID.String() {
			t.Errorf("page = %v", page)
		}
	})

	t.Run("DeleteBefore", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now()

		stale := NewCheckpoint("pliego", checkpoint.StatusSuspended, now.Add(-8*24*time.Hour))
		fresh := NewCheckpoint("pliego", checkpoint.StatusSuspended, now)
		done := NewCheckpoint("pliego", checkpoint.StatusCompleted, now.Add(-8*24*time.Hour))
		for _, cp := range []*checkpoint.Checkpoint{stale, fresh, done} {
			if err := s.SaveCheckpoint(ctx, cp); err != nil {
				t.Fatalf("SaveCheckpoint: %v", err)
			}
		}

		n, err := s.DeleteCheckpointsBefore(ctx, checkpoint.StatusSuspended, now.Add(-7*24*time.Hour))
		if err != nil {
			t.Fatalf("DeleteCheckpointsBefore: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d, want 1", n)
		}
		if _, err := s.LoadCheckpoint(ctx, stale.ExecutionID); !errors.Is(err, drafter.ErrCheckpointNotFound) {
			t.Errorf("stale checkpoint still present: %v", err)
		}
		for _, cp := range []*checkpoint.Checkpoint{fresh, done} {
			if _, err := s.LoadCheckpoint(ctx, cp.ExecutionID); err != nil {
				t.Errorf("checkpoint %s removed: %v", cp.ExecutionID, err)
			}
		}
	})
}
