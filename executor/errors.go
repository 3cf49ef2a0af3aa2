package executor

import (
	"fmt"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// StaleResumeError reports a resume against an execution that is not
// waiting for input: unknown, already finished, or never suspended.
type StaleResumeError struct {
	ExecutionID id.ExecutionID

	// Status is the checkpoint status, empty when no checkpoint exists.
	Status checkpoint.Status
}

func (e *StaleResumeError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s: execution %s has no checkpoint", drafter.ErrStaleResume.Error(), e.ExecutionID)
	}
	return fmt.Sprintf("%s: execution %s is %s", drafter.ErrStaleResume.Error(), e.ExecutionID, e.Status)
}

func (e *StaleResumeError) Unwrap() error { return drafter.ErrStaleResume }

// NodeError reports the node whose failure stopped an execution. It wraps
// the node's error, so errors.Is and errors.As see through it.
type NodeError struct {
	ExecutionID id.ExecutionID
	Node        string
	Err         error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("execution %s: node %s: %v", e.ExecutionID, e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
