package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/drafter/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ExecutionID", id.NewExecutionID, "exec_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
		{"ReviewID", id.NewReviewID, "rev_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewExecutionID()
	parsed, err := id.ParseExecutionID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestCrossTypeRejection(t *testing.T) {
	ckpt := id.NewCheckpointID().String()
	if _, err := id.ParseExecutionID(ckpt); err == nil {
		t.Errorf("expected error parsing %q as execution ID", ckpt)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "not-an-id", "exec_"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil String() = %q, want empty", i.String())
	}
	raw, err := i.MarshalText()
	if err != nil || len(raw) != 0 {
		t.Errorf("nil MarshalText() = %q, %v", raw, err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type doc struct {
		ID id.ID `json:"id"`
	}
	in := doc{ID: id.NewExecutionID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("got %q, want %q", out.ID, in.ID)
	}
}

func TestCompare(t *testing.T) {
	first := id.NewExecutionID()
	second := id.NewExecutionID()

	if id.Compare(first, first) != 0 {
		t.Error("an id should equal itself")
	}
	if c := id.Compare(id.Nil, first); c >= 0 {
		t.Errorf("Compare(Nil, id) = %d, want < 0", c)
	}
	// UUIDv7 suffixes grow with time, so later ids never sort first.
	if c := id.Compare(second, first); c < 0 {
		t.Errorf("Compare(later, earlier) = %d", c)
	}
}

func TestPrefixMismatchMessage(t *testing.T) {
	rev := id.NewReviewID().String()
	_, err := id.ParseCheckpointID(rev)
	if err == nil || !strings.Contains(err.Error(), `want "ckpt"`) {
		t.Errorf("error = %v", err)
	}
	parsed, err := id.ParseReviewID(rev)
	if err != nil || parsed.Prefix() != id.PrefixReview {
		t.Errorf("ParseReviewID = %v, %v", parsed, err)
	}
}
