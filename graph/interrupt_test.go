package graph_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter/graph"
)

func TestInterrupt_SuspendsWithoutResume(t *testing.T) {
	ctx := graph.WithResumes(context.Background(), nil)

	v, err := graph.Interrupt(ctx, map[string]any{"action": "review", "items": []int{1, 2}})
	if v != nil {
		t.Errorf("value = %v, want nil", v)
	}
	s, ok := graph.AsSuspension(err)
	if !ok {
		t.Fatalf("expected suspension, got %v", err)
	}
	want := map[string]any{"action": "review", "items": []any{1.0, 2.0}}
	if diff := cmp.Diff(want, s.Payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
	if s.Index != 0 {
		t.Errorf("index = %d, want 0", s.Index)
	}
}

func TestInterrupt_ReturnsResumeValuesInOrder(t *testing.T) {
	ctx := graph.WithResumes(context.Background(), []any{"first"})

	v, err := graph.Interrupt(ctx, "q1")
	if err != nil || v != "first" {
		t.Fatalf("first interrupt = %v, %v", v, err)
	}
	_, err = graph.Interrupt(ctx, "q2")
	s, ok := graph.AsSuspension(err)
	if !ok {
		t.Fatalf("second interrupt should suspend, got %v", err)
	}
	if s.Index != 1 || s.Payload != "q2" {
		t.Errorf("suspension = %+v", s)
	}
}

func TestInterrupt_ConcurrentCallsGetDistinctIndexes(t *testing.T) {
	const n = 16
	ctx := graph.WithResumes(context.Background(), nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		indexes = make(map[int]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := graph.Interrupt(ctx, "q")
			s, ok := graph.AsSuspension(err)
			if !ok {
				t.Errorf("expected suspension, got %v", err)
				return
			}
			mu.Lock()
			indexes[s.Index] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for k := 0; k < n; k++ {
		if !indexes[k] {
			t.Errorf("index %d never handed out; got %v", k, indexes)
		}
	}
}

func TestInterrupt_WrappedSuspension(t *testing.T) {
	_, err := graph.Interrupt(context.Background(), "x")
	wrapped := fmt.Errorf("node body: %w", err)
	if !graph.IsSuspension(wrapped) {
		t.Error("wrapped suspension not detected")
	}
	if graph.IsSuspension(fmt.Errorf("other")) {
		t.Error("plain error detected as suspension")
	}
}

func TestInterrupt_UnserializablePayload(t *testing.T) {
	_, err := graph.Interrupt(context.Background(), make(chan int))
	if err == nil || graph.IsSuspension(err) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestInterruptAs(t *testing.T) {
	type item struct {
		Name    string `json:"name"`
		Agregar bool   `json:"agregar"`
	}
	resume := []any{map[string]any{"name": "a", "agregar": true}, map[string]any{"name": "b"}}
	ctx := graph.WithResumes(context.Background(), []any{resume})

	got, err := graph.InterruptAs[[]item](ctx, nil)
	if err != nil {
		t.Fatalf("InterruptAs: %v", err)
	}
	want := []item{{Name: "a", Agregar: true}, {Name: "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded (-want +got):\n%s", diff)
	}
}
