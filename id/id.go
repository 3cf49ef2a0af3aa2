// Package id defines the TypeID identifiers of drafter.
//
// An ID renders as "prefix_suffix", for example
// "exec_01h2xcejqtf2nbrexx3vqjhp41". The suffix is a UUIDv7, so ids of
// one prefix sort by creation time. Stores persist ids as text.
package id

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of entity an ID identifies.
type Prefix string

const (
	PrefixExecution  Prefix = "exec"
	PrefixCheckpoint Prefix = "ckpt"
	PrefixReview     Prefix = "rev"
)

// ID is a prefixed TypeID. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the zero ID.
var Nil ID

// ExecutionID ties a start call to its resumes and its checkpoint.
type ExecutionID = ID

// CheckpointID identifies one checkpoint write.
type CheckpointID = ID

// ReviewID identifies one human review decision in the audit trail.
type ReviewID = ID

// New returns a fresh ID. An invalid prefix is a programming error and
// panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

func NewExecutionID() ID  { return New(PrefixExecution) }
func NewCheckpointID() ID { return New(PrefixCheckpoint) }
func NewReviewID() ID     { return New(PrefixReview) }

// Parse parses any prefixed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

func ParseExecutionID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixExecution) }
func ParseCheckpointID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCheckpoint) }
func ParseReviewID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixReview) }

// String returns the text form, or "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.set }

// Compare orders ids by text form: by prefix, then by creation time.
// Nil sorts first.
func Compare(a, b ID) int {
	return strings.Compare(a.String(), b.String())
}

// MarshalText implements encoding.TextMarshaler, which also covers JSON
// and msgpack.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input is Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
