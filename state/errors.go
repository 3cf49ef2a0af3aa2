package state

import (
	"fmt"

	"github.com/xraph/drafter"
)

// UnknownFieldError is returned when an update names a field that the
// schema does not declare.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("drafter: unknown state field %q", e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return drafter.ErrUnknownField }

// MergeConflictError is returned when a value cannot be reconciled with
// the field's kind or with the existing value under the field's policy.
type MergeConflictError struct {
	Field  string
	Policy Policy
	Reason string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("drafter: merge conflict on %q (%s): %s", e.Field, e.Policy, e.Reason)
}

func (e *MergeConflictError) Unwrap() error { return drafter.ErrMergeConflict }

// SchemaError reports an invalid field declaration.
type SchemaError struct {
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "drafter: invalid state schema: " + e.Msg
	}
	return fmt.Sprintf("drafter: invalid state schema: field %q: %s", e.Field, e.Msg)
}

func (e *SchemaError) Unwrap() error { return drafter.ErrSchema }
