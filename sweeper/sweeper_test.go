package sweeper_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store/memory"
	"github.com/xraph/drafter/store/storetest"
	"github.com/xraph/drafter/sweeper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sweptEvent struct {
	Status checkpoint.Status
	Count  int64
}

type recorder struct {
	mu     sync.Mutex
	events []sweptEvent
}

func (r *recorder) EmitCheckpointsSwept(_ context.Context, status checkpoint.Status, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sweptEvent{status, count})
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := memory.New()

	seed := map[string]*checkpoint.Checkpoint{
		"old-suspended":   storetest.NewCheckpoint("pliego", checkpoint.StatusSuspended, now.Add(-8*24*time.Hour)),
		"fresh-suspended": storetest.NewCheckpoint("pliego", checkpoint.StatusSuspended, now.Add(-2*24*time.Hour)),
		"old-completed":   storetest.NewCheckpoint("pliego", checkpoint.StatusCompleted, now.Add(-25*time.Hour)),
		"fresh-completed": storetest.NewCheckpoint("pliego", checkpoint.StatusCompleted, now.Add(-time.Hour)),
		"old-failed":      storetest.NewCheckpoint("generica", checkpoint.StatusFailed, now.Add(-48*time.Hour)),
		"orphan-running":  storetest.NewCheckpoint("generica", checkpoint.StatusRunning, now.Add(-10*24*time.Hour)),
	}
	for _, cp := range seed {
		if err := store.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatal(err)
		}
	}

	rec := &recorder{}
	s := sweeper.New(store, sweeper.Policy{SuspendedTTL: 7 * 24 * time.Hour, FinishedTTL: 24 * time.Hour}, "@every 1h",
		sweeper.WithLogger(testLogger()),
		sweeper.WithEmitter(rec),
		sweeper.WithClock(func() time.Time { return now }),
	)

	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	want := map[checkpoint.Status]int64{
		checkpoint.StatusSuspended: 1,
		checkpoint.StatusRunning:   1,
		checkpoint.StatusCompleted: 1,
		checkpoint.StatusFailed:    1,
	}
	if diff := cmp.Diff(want, removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if len(rec.events) != 4 {
		t.Errorf("events = %v", rec.events)
	}

	for name, cp := range seed {
		_, err := store.LoadCheckpoint(ctx, cp.ExecutionID)
		gone := errors.Is(err, drafter.ErrCheckpointNotFound)
		if wantGone := name[:5] != "fresh"; gone != wantGone {
			t.Errorf("%s: gone = %v, want %v", name, gone, wantGone)
		}
	}

	// A second sweep finds nothing and emits nothing.
	removed, err = s.Sweep(ctx)
	if err != nil || len(removed) != 0 {
		t.Errorf("second sweep = %v, %v", removed, err)
	}
	if len(rec.events) != 4 {
		t.Errorf("events after empty sweep = %d", len(rec.events))
	}
}

func TestSweep_ZeroTTLKeepsForever(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cp := storetest.NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now().Add(-365*24*time.Hour))
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatal(err)
	}
	s := sweeper.New(store, sweeper.Policy{FinishedTTL: time.Hour}, "@every 1h", sweeper.WithLogger(testLogger()))
	if _, err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := store.LoadCheckpoint(ctx, cp.ExecutionID); err != nil {
		t.Errorf("suspended checkpoint removed with zero TTL: %v", err)
	}
}

type failingStore struct{}

func (failingStore) DeleteCheckpointsBefore(context.Context, checkpoint.Status, time.Time) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestSweep_JoinsErrors(t *testing.T) {
	s := sweeper.New(failingStore{}, sweeper.Policy{SuspendedTTL: time.Hour, FinishedTTL: time.Hour}, "@every 1h",
		sweeper.WithLogger(testLogger()))
	if _, err := s.Sweep(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	s := sweeper.New(memory.New(), sweeper.Policy{}, "@every 1h", sweeper.WithLogger(testLogger()))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start succeeded")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := sweeper.New(memory.New(), sweeper.Policy{}, "every now and then", sweeper.WithLogger(testLogger()))
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
