package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/executor"
)

// errorMapping pairs a sentinel with its HTTP status and code. Order
// matters: the first match wins, so the timeout sentinel precedes the
// general external call sentinel.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{drafter.ErrStaleResume, http.StatusConflict, CodeStaleResume},
	{drafter.ErrExecutionBusy, http.StatusConflict, CodeExecutionBusy},
	{drafter.ErrExecutionExists, http.StatusConflict, CodeExecutionExists},
	{drafter.ErrCheckpointConflict, http.StatusConflict, CodeCheckpointConflict},
	{drafter.ErrGraphNotFound, http.StatusNotFound, CodeGraphNotFound},
	{drafter.ErrCheckpointNotFound, http.StatusNotFound, CodeNotFound},
	{drafter.ErrUnknownField, http.StatusUnprocessableEntity, CodeUnknownField},
	{drafter.ErrMergeConflict, http.StatusUnprocessableEntity, CodeMergeConflict},
	{drafter.ErrSchema, http.StatusUnprocessableEntity, CodeInvalidSchema},
	{drafter.ErrTopology, http.StatusInternalServerError, CodeInvalidTopology},
	{drafter.ErrExternalTimeout, http.StatusGatewayTimeout, CodeExternalTimeout},
	{drafter.ErrExternalCall, http.StatusBadGateway, CodeExternalCall},
	{drafter.ErrNoStore, http.StatusServiceUnavailable, CodeNoStore},
	{drafter.ErrStoreClosed, http.StatusServiceUnavailable, CodeServiceUnavailable},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeExternalTimeout},
}

// statusOf maps err to an HTTP status and error code.
func statusOf(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	var nodeErr *executor.NodeError
	if errors.As(err, &nodeErr) {
		return http.StatusInternalServerError, CodeNodeFailed
	}
	return http.StatusInternalServerError, CodeInternal
}

// requestError is a client mistake detected before reaching the engine.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }
