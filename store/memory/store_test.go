package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/store/memory"
	"github.com/xraph/drafter/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) checkpoint.Store { return memory.New() })
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestLoadIsIsolated(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	cp := storetest.NewCheckpoint("pliego", checkpoint.StatusSuspended, time.Now())
	if err := s.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatal(err)
	}

	cp.Values["document"] = "changed after save"
	got, err := s.LoadCheckpoint(ctx, cp.ExecutionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Values["document"] != "# Losa" {
		t.Errorf("saved checkpoint aliased caller memory: %v", got.Values["document"])
	}

	got.Position.Completed[0] = "mutated"
	again, _ := s.LoadCheckpoint(ctx, cp.ExecutionID)
	if again.Position.Completed[0] != "clean_and_capture" {
		t.Error("loaded checkpoint aliased store memory")
	}
}
