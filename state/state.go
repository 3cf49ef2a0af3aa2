package state

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Update is a partial state returned by a node. Keys must be declared in
// the schema.
type Update map[string]any

// State is the live state container of one execution. It is not safe for
// concurrent use; the executor owns it and applies updates one at a time.
type State struct {
	schema  *Schema
	values  map[string]any
	version int64
}

// Schema returns the schema the state was created from.
func (s *State) Schema() *Schema { return s.schema }

// Version is incremented by every successful Apply.
func (s *State) Version() int64 { return s.version }

// Apply merges u into the state according to each field's policy.
// The update is atomic: if any key fails, the state is left unchanged.
// An empty update is a no-op and does not bump the version.
func (s *State) Apply(u Update) error {
	if len(u) == 0 {
		return nil
	}
	next := maps.Clone(s.values)
	for k, v := range u {
		f, ok := s.schema.fields[k]
		if !ok {
			return &UnknownFieldError{Field: k}
		}
		merged, err := merge(f, next[k], v)
		if err != nil {
			return err
		}
		next[k] = merged
	}
	s.values = next
	s.version++
	return nil
}

func merge(f Field, existing, incoming any) (any, error) {
	in, err := normalize(f.Kind, incoming)
	if err != nil {
		return nil, &MergeConflictError{Field: f.Name, Policy: f.Policy, Reason: err.Error()}
	}
	switch f.Policy {
	case Add:
		if in == nil {
			return existing, nil
		}
		cur, _ := existing.(float64)
		return roundSum(cur + in.(float64)), nil
	case Append:
		if in == nil {
			return existing, nil
		}
		cur, _ := existing.([]any)
		out := make([]any, 0, len(cur)+len(in.([]any)))
		out = append(out, cur...)
		return append(out, in.([]any)...), nil
	default:
		if in == nil {
			return deepCopy(f.Default), nil
		}
		return in, nil
	}
}

// Snapshot returns an immutable deep copy of the current values.
func (s *State) Snapshot() Snapshot {
	return Snapshot{values: deepCopy(s.values).(map[string]any), version: s.version}
}

// Snapshot is a read-only view of a state at one version. Accessors return
// copies, so callers can never alter the snapshot.
type Snapshot struct {
	values  map[string]any
	version int64
}

// Version is the state version the snapshot was taken at.
func (s Snapshot) Version() int64 { return s.version }

// Values returns a deep copy of every field value.
func (s Snapshot) Values() map[string]any {
	if s.values == nil {
		return map[string]any{}
	}
	return deepCopy(s.values).(map[string]any)
}

// Get returns a copy of the value of name.
func (s Snapshot) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return deepCopy(v), ok
}

// String returns the string value of name, or "".
func (s Snapshot) String(name string) string {
	v, _ := s.values[name].(string)
	return v
}

// Float returns the number value of name, or 0.
func (s Snapshot) Float(name string) float64 {
	v, _ := s.values[name].(float64)
	return v
}

// Bool returns the bool value of name, or false.
func (s Snapshot) Bool(name string) bool {
	v, _ := s.values[name].(bool)
	return v
}

// Strings returns the list value of name as strings, skipping non-strings.
func (s Snapshot) Strings(name string) []string {
	list, _ := s.values[name].([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Len returns the length of a list field, or 0.
func (s Snapshot) Len(name string) int {
	list, _ := s.values[name].([]any)
	return len(list)
}

// MarshalJSON encodes the snapshot values.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// Decode converts the value of name into T through its JSON form.
// Use it to read structured list and map fields into typed Go values.
func Decode[T any](s Snapshot, name string) (T, error) {
	var out T
	v, ok := s.values[name]
	if !ok {
		return out, &UnknownFieldError{Field: name}
	}
	if v == nil {
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("decode %q: %w", name, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %q: %w", name, err)
	}
	return out, nil
}
