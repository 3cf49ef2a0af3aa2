package api

import (
	"time"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/engine"
)

// StartRequest is the body of POST /v1/executions.
type StartRequest struct {
	Graph string `json:"graph"`

	// ExecutionID is optional; the server generates one when empty.
	ExecutionID string `json:"execution_id,omitempty"`

	Fields map[string]any `json:"fields"`
}

// ResumeRequest is the body of POST /v1/executions/{id}/resume.
type ResumeRequest struct {
	Value any `json:"value"`
}

// ExecutionSummary is one entry of GET /v1/executions.
type ExecutionSummary struct {
	ExecutionID  string            `json:"execution_id"`
	Graph        string            `json:"graph"`
	GraphVersion int               `json:"graph_version"`
	Status       checkpoint.Status `json:"status"`
	Node         string            `json:"node,omitempty"`
	Step         int64             `json:"step"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ListExecutionsResponse is the body of GET /v1/executions.
type ListExecutionsResponse struct {
	Executions []ExecutionSummary `json:"executions"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request. Outcome is set when
// an execution failed in a node and its final view is available.
type ErrorResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Outcome *engine.Outcome `json:"outcome,omitempty"`
}

// Error codes.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeGraphNotFound      = "graph_not_found"
	CodeNotFound           = "execution_not_found"
	CodeStaleResume        = "stale_resume"
	CodeExecutionBusy      = "execution_busy"
	CodeExecutionExists    = "execution_exists"
	CodeCheckpointConflict = "checkpoint_conflict"
	CodeUnknownField       = "unknown_field"
	CodeMergeConflict      = "merge_conflict"
	CodeInvalidSchema      = "invalid_schema"
	CodeExternalTimeout    = "external_timeout"
	CodeExternalCall       = "external_call"
	CodeNodeFailed         = "node_failed"
	CodeNoStore            = "no_store"
	CodeInternal           = "internal"
	CodeInvalidTopology    = "invalid_topology"
	CodeServiceUnavailable = "unavailable"
)

func summaryOf(cp *checkpoint.Checkpoint) ExecutionSummary {
	s := ExecutionSummary{
		ExecutionID:  cp.ExecutionID.String(),
		Graph:        cp.Graph,
		GraphVersion: cp.GraphVersion,
		Status:       cp.Status,
		Step:         cp.Step,
		Error:        cp.Error,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}
	if cp.Position.Suspended != nil {
		s.Node = cp.Position.Suspended.Node
	}
	return s
}
