package checkpoint_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

func sample() *checkpoint.Checkpoint {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &checkpoint.Checkpoint{
		ID:          id.NewCheckpointID(),
		ExecutionID: id.NewExecutionID(),
		Graph:       "pliego",
		Status:      checkpoint.StatusSuspended,
		Position: checkpoint.Position{
			Completed: []string{"a"},
			Pending:   []string{"b"},
			Suspended: &checkpoint.Suspended{
				Node:    "add_parameters",
				Payload: map[string]any{"items": []any{map[string]any{"n": 1.0, "ok": true}}},
				Resumes: []any{"first"},
			},
		},
		Values:       map[string]any{"token_cost": 0.03, "count": 7.0, "nested": map[string]any{"k": []any{1.5, nil}}},
		StateVersion: 3,
		Step:         3,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCodecs(t *testing.T) {
	opts := cmp.Options{
		cmp.Comparer(func(a, b id.ID) bool { return a.String() == b.String() }),
		cmpopts.EquateApproxTime(0),
	}
	for _, name := range []string{checkpoint.CodecNameJSON, checkpoint.CodecNameMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec := checkpoint.GetCodec(name)
			if codec.Name() != name {
				t.Fatalf("GetCodec(%q).Name() = %q", name, codec.Name())
			}
			cp := sample()
			data, err := codec.Encode(cp)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(cp, got, opts); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetCodec_DefaultsToJSON(t *testing.T) {
	if got := checkpoint.GetCodec("protobuf").Name(); got != checkpoint.CodecNameJSON {
		t.Errorf("default codec = %q", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[checkpoint.Status]bool{
		checkpoint.StatusRunning:   false,
		checkpoint.StatusSuspended: false,
		checkpoint.StatusCompleted: true,
		checkpoint.StatusFailed:    true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v", s, !want)
		}
	}
}

func TestPositionClone(t *testing.T) {
	p := sample().Position
	c := p.Clone()
	c.Completed[0] = "x"
	c.Suspended.Resumes[0] = "y"
	if p.Completed[0] != "a" || p.Suspended.Resumes[0] != "first" {
		t.Error("clone shares memory with original")
	}
}
