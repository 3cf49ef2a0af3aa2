package state_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/state"
)

func testSchema(t *testing.T) *state.Schema {
	t.Helper()
	s, err := state.NewSchema(
		state.String("title"),
		state.Counter("cost"),
		state.Appending("log"),
		state.List("items"),
		state.Map("meta"),
		state.Bool("done"),
		state.Field{Name: "extra"},
	)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestNew_DefaultsAndInitial(t *testing.T) {
	s := testSchema(t)
	st, err := s.New(map[string]any{"title": "Losa", "cost": 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := map[string]any{
		"title": "Losa",
		"cost":  1.0,
		"log":   []any{},
		"items": []any{},
		"meta":  map[string]any{},
		"done":  false,
		"extra": nil,
	}
	if diff := cmp.Diff(want, st.Snapshot().Values()); diff != "" {
		t.Errorf("initial state mismatch (-want +got):\n%s", diff)
	}
	if st.Version() != 0 {
		t.Errorf("version = %d, want 0", st.Version())
	}
}

func TestNew_RejectsUnknownField(t *testing.T) {
	s := testSchema(t)
	_, err := s.New(map[string]any{"nope": 1})
	var ufe *state.UnknownFieldError
	if !errors.As(err, &ufe) || ufe.Field != "nope" {
		t.Fatalf("expected UnknownFieldError for nope, got %v", err)
	}
	if !errors.Is(err, drafter.ErrUnknownField) {
		t.Error("expected errors.Is ErrUnknownField")
	}
}

func TestApply_Policies(t *testing.T) {
	s := testSchema(t)
	st, _ := s.New(nil)

	steps := []state.Update{
		{"title": "a", "cost": 0.01, "log": []string{"x"}},
		{"title": "b", "cost": 0.02, "log": []any{"y", "z"}},
		{"items": []map[string]any{{"id": 1}}},
	}
	for i, u := range steps {
		if err := st.Apply(u); err != nil {
			t.Fatalf("Apply #%d: %v", i, err)
		}
	}

	snap := st.Snapshot()
	if snap.String("title") != "b" {
		t.Errorf("title = %q, want b", snap.String("title"))
	}
	if snap.Float("cost") != 0.03 {
		t.Errorf("cost = %v, want 0.03", snap.Float("cost"))
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, snap.Strings("log")); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	items, _ := snap.Get("items")
	if diff := cmp.Diff([]any{map[string]any{"id": 1.0}}, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	if snap.Version() != 3 {
		t.Errorf("version = %d, want 3", snap.Version())
	}
}

func TestApply_AddIsCommutative(t *testing.T) {
	s := testSchema(t)
	deltas := []float64{0.01, 0.02, 0.07, 0.003, 1.1}

	// Every rotation and the reverse must agree.
	var results []float64
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}, {1, 3, 0, 4, 2}}
	for _, order := range orders {
		st, _ := s.New(nil)
		for _, i := range order {
			if err := st.Apply(state.Update{"cost": deltas[i]}); err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}
		results = append(results, st.Snapshot().Float("cost"))
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("order %v total %v != %v", orders[i], results[i], results[0])
		}
	}
	if results[0] != 1.203 {
		t.Errorf("total = %v, want 1.203", results[0])
	}
}

func TestApply_TwoWritesCommute(t *testing.T) {
	s := testSchema(t)
	ab, _ := s.New(nil)
	ba, _ := s.New(nil)
	_ = ab.Apply(state.Update{"cost": 0.1})
	_ = ab.Apply(state.Update{"cost": 0.2})
	_ = ba.Apply(state.Update{"cost": 0.2})
	_ = ba.Apply(state.Update{"cost": 0.1})
	if ab.Snapshot().Float("cost") != ba.Snapshot().Float("cost") {
		t.Errorf("a then b = %v, b then a = %v", ab.Snapshot().Float("cost"), ba.Snapshot().Float("cost"))
	}
}

func TestApply_IsAtomic(t *testing.T) {
	s := testSchema(t)
	st, _ := s.New(map[string]any{"title": "keep"})

	err := st.Apply(state.Update{"title": "changed", "unknown": 1})
	if !errors.Is(err, drafter.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if got := st.Snapshot().String("title"); got != "keep" {
		t.Errorf("title = %q after failed apply, want keep", got)
	}
	if st.Version() != 0 {
		t.Errorf("version bumped by failed apply: %d", st.Version())
	}
}

func TestApply_MergeConflict(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		name string
		u    state.Update
	}{
		{"string into number", state.Update{"cost": "lots"}},
		{"scalar into append list", state.Update{"log": "single"}},
		{"number into string", state.Update{"title": 3}},
		{"list into map", state.Update{"meta": []any{1}}},
		{"unserializable", state.Update{"extra": func() {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := s.New(nil)
			err := st.Apply(tt.u)
			var mce *state.MergeConflictError
			if !errors.As(err, &mce) {
				t.Fatalf("expected MergeConflictError, got %v", err)
			}
			if !errors.Is(err, drafter.ErrMergeConflict) {
				t.Error("expected errors.Is ErrMergeConflict")
			}
		})
	}
}

func TestApply_NilReplaceResetsDefault(t *testing.T) {
	s := testSchema(t)
	st, _ := s.New(map[string]any{"title": "x"})
	if err := st.Apply(state.Update{"title": nil}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := st.Snapshot().String("title"); got != "" {
		t.Errorf("title = %q, want default", got)
	}
}

func TestSnapshot_IsImmutable(t *testing.T) {
	s := testSchema(t)
	st, _ := s.New(map[string]any{"items": []any{"a"}, "meta": map[string]any{"k": "v"}})
	snap := st.Snapshot()

	vals := snap.Values()
	vals["items"].([]any)[0] = "mutated"
	vals["meta"].(map[string]any)["k"] = "mutated"

	items, _ := snap.Get("items")
	if items.([]any)[0] != "a" {
		t.Error("snapshot list changed through Values()")
	}
	_ = st.Apply(state.Update{"items": []any{"b"}})
	if got, _ := snap.Get("items"); got.([]any)[0] != "a" {
		t.Error("snapshot changed by later Apply")
	}
}

func TestRestore(t *testing.T) {
	s := testSchema(t)
	st, err := s.Restore(map[string]any{"cost": 0.5, "items": []any{"q"}}, 7)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if st.Version() != 7 {
		t.Errorf("version = %d, want 7", st.Version())
	}
	snap := st.Snapshot()
	if snap.Float("cost") != 0.5 || snap.Len("items") != 1 || snap.String("title") != "" {
		t.Errorf("unexpected restored values: %v", snap.Values())
	}

	if _, err := s.Restore(map[string]any{"gone": 1}, 1); !errors.Is(err, drafter.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField restoring unknown field, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	type item struct {
		ID      int  `json:"id"`
		Agregar bool `json:"agregar"`
	}
	s := testSchema(t)
	st, _ := s.New(map[string]any{"items": []item{{ID: 1, Agregar: true}, {ID: 2}}})

	got, err := state.Decode[[]item](st.Snapshot(), "items")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []item{{ID: 1, Agregar: true}, {ID: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}

	if _, err := state.Decode[string](st.Snapshot(), "missing"); !errors.Is(err, drafter.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestNewSchema_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		fields []state.Field
	}{
		{"empty name", []state.Field{{Kind: state.KindString}}},
		{"duplicate", []state.Field{state.String("a"), state.String("a")}},
		{"add on string", []state.Field{{Name: "a", Kind: state.KindString, Policy: state.Add}}},
		{"append on number", []state.Field{{Name: "a", Kind: state.KindNumber, Policy: state.Append}}},
		{"bad default", []state.Field{state.Number("a").WithDefault("x")}},
		{"bad policy", []state.Field{{Name: "a", Kind: state.KindAny, Policy: "merge"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := state.NewSchema(tt.fields...)
			if !errors.Is(err, drafter.ErrSchema) {
				t.Fatalf("expected ErrSchema, got %v", err)
			}
		})
	}
}
