package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Suspension is returned by Interrupt when no resume value is available
// for the interrupt point. A node must return it (wrapped or not) so the
// executor can suspend the execution.
type Suspension struct {
	// Payload is the JSON form of the value given to Interrupt.
	Payload any

	// Index is the position of the interrupt point within the node body.
	Index int
}

func (s *Suspension) Error() string {
	return fmt.Sprintf("graph: node suspended at interrupt %d", s.Index)
}

// AsSuspension reports whether err carries a Suspension.
func AsSuspension(err error) (*Suspension, bool) {
	var s *Suspension
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// IsSuspension reports whether err carries a Suspension.
func IsSuspension(err error) bool {
	_, ok := AsSuspension(err)
	return ok
}

type interruptsKey struct{}

// interrupts tracks the resume values of one node run. The k-th call to
// Interrupt consumes resumes[k].
type interrupts struct {
	mu      sync.Mutex
	resumes []any
	next    int
}

// claim numbers the next interrupt point and returns its resume value, if
// one was supplied.
func (st *interrupts) claim() (int, any, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	k := st.next
	st.next++
	if k < len(st.resumes) {
		return k, st.resumes[k], true
	}
	return k, nil, false
}

// WithResumes returns a context carrying the resume values of the node
// that is about to run. The executor calls it before every node body.
func WithResumes(ctx context.Context, resumes []any) context.Context {
	return context.WithValue(ctx, interruptsKey{}, &interrupts{resumes: resumes})
}

// Interrupt pauses the node for external input. The first time the point
// is reached it returns a *Suspension carrying payload; the node must
// return that error. When the execution is resumed, the node body runs
// again from the start and the same call returns the resume value.
//
// Interrupt points are numbered in call order. It is safe to call from
// goroutines the node starts, but replay is only deterministic when the
// calls happen in the same order on every run, so call it from the node's
// own goroutine unless the order does not matter.
//
// Payload must be JSON-serializable.
func Interrupt(ctx context.Context, payload any) (any, error) {
	st, _ := ctx.Value(interruptsKey{}).(*interrupts)
	if st == nil {
		st = &interrupts{}
	}
	k, v, ok := st.claim()
	if ok {
		return v, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("graph: interrupt payload: %w", err)
	}
	var canonical any
	if err := json.Unmarshal(data, &canonical); err != nil {
		return nil, fmt.Errorf("graph: interrupt payload: %w", err)
	}
	return nil, &Suspension{Payload: canonical, Index: k}
}

// InterruptAs is Interrupt with the resume value decoded into T through
// its JSON form.
func InterruptAs[T any](ctx context.Context, payload any) (T, error) {
	var out T
	v, err := Interrupt(ctx, payload)
	if err != nil {
		return out, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("graph: decode resume value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("graph: decode resume value: %w", err)
	}
	return out, nil
}
