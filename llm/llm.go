// Package llm is the boundary to the language model. Nodes call a
// Transformer with a prompt and get back text plus the cost of the call,
// which they return as a delta on the execution's cost field.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/drafter"
)

// Prompt is the input of one model call.
type Prompt struct {
	// System sets the assistant's role. Optional.
	System string

	// User is the instruction with its inputs already rendered in.
	User string

	// Temperature overrides the client default when > 0.
	Temperature float64

	// Name labels the call in logs and spans, usually the node name.
	Name string
}

// Completion is the output of one model call.
type Completion struct {
	Text         string
	Cost         float64
	InputTokens  int
	OutputTokens int
}

// Transformer turns a prompt into text. Implementations must honour ctx
// and report failures as *CallError.
type Transformer interface {
	Transform(ctx context.Context, p Prompt) (Completion, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, p Prompt) (Completion, error)

// Transform calls f.
func (f TransformerFunc) Transform(ctx context.Context, p Prompt) (Completion, error) {
	return f(ctx, p)
}

// Kind classifies a failed call.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindCanceled  Kind = "canceled"
)

// CallError is a failed model call. It matches drafter.ErrExternalCall,
// and drafter.ErrExternalTimeout when Kind is KindTimeout.
type CallError struct {
	Kind   Kind
	Name   string
	Status int
	Err    error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("llm: %s call", e.Kind)
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// Is makes errors.Is match the external call sentinels.
func (e *CallError) Is(target error) bool {
	switch target {
	case drafter.ErrExternalCall:
		return true
	case drafter.ErrExternalTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// IsTimeout reports whether err is a model call that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, drafter.ErrExternalTimeout)
}
