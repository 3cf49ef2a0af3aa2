package client

import (
	"fmt"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/engine"
)

// Error is a non-2xx answer from the server.
type Error struct {
	StatusCode int
	Code       string
	Message    string

	// Outcome is the failed execution view when a node failed.
	Outcome *engine.Outcome
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("drafter: server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("drafter: server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

var codeSentinels = map[string]error{
	api.CodeStaleResume:        drafter.ErrStaleResume,
	api.CodeExecutionBusy:      drafter.ErrExecutionBusy,
	api.CodeExecutionExists:    drafter.ErrExecutionExists,
	api.CodeCheckpointConflict: drafter.ErrCheckpointConflict,
	api.CodeGraphNotFound:      drafter.ErrGraphNotFound,
	api.CodeNotFound:           drafter.ErrCheckpointNotFound,
	api.CodeUnknownField:       drafter.ErrUnknownField,
	api.CodeMergeConflict:      drafter.ErrMergeConflict,
	api.CodeInvalidSchema:      drafter.ErrSchema,
	api.CodeInvalidTopology:    drafter.ErrTopology,
	api.CodeExternalCall:       drafter.ErrExternalCall,
	api.CodeNoStore:            drafter.ErrNoStore,
}

// Is matches the drafter sentinel the server's error code stands for. A
// timeout code matches both ErrExternalTimeout and ErrExternalCall.
func (e *Error) Is(target error) bool {
	if e.Code == api.CodeExternalTimeout {
		return target == drafter.ErrExternalTimeout || target == drafter.ErrExternalCall
	}
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// TransportError is a request that never got an HTTP answer.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("drafter: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
