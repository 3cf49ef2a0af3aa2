package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/ext"
	"github.com/xraph/drafter/id"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.ExecutionStarted   = (*Extension)(nil)
	_ ext.NodeCompleted      = (*Extension)(nil)
	_ ext.NodeFailed         = (*Extension)(nil)
	_ ext.ExecutionSuspended = (*Extension)(nil)
	_ ext.ExecutionResumed   = (*Extension)(nil)
	_ ext.ExecutionCompleted = (*Extension)(nil)
	_ ext.ExecutionFailed    = (*Extension)(nil)
	_ ext.CheckpointsSwept   = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePending = "pending"
)

// Extension bridges Drafter lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnExecutionStarted implements ext.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, cp.ExecutionID.String(), CategoryExecution, nil,
		"graph", cp.Graph,
		"graph_version", cp.GraphVersion,
	)
}

// OnNodeCompleted implements ext.NodeCompleted.
func (e *Extension) OnNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error {
	return e.record(ctx, ActionNodeCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, cp.ExecutionID.String(), CategoryExecution, nil,
		"graph", cp.Graph,
		"node", node,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnNodeFailed implements ext.NodeFailed.
func (e *Extension) OnNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, nodeErr error) error {
	return e.record(ctx, ActionNodeFailed, SeverityWarning, OutcomeFailure,
		ResourceExecution, cp.ExecutionID.String(), CategoryExecution, nodeErr,
		"graph", cp.Graph,
		"node", node,
	)
}

// OnExecutionSuspended implements ext.ExecutionSuspended. The suspension is
// recorded as a review request with the number of items put to review.
func (e *Extension) OnExecutionSuspended(ctx context.Context, cp *checkpoint.Checkpoint) error {
	node, items := "", 0
	if s := cp.Position.Suspended; s != nil {
		node = s.Node
		if p, ok := s.Payload.(map[string]any); ok {
			if list, ok := p["items"].([]any); ok {
				items = len(list)
			}
		}
	}
	return e.record(ctx, ActionReviewRequested, SeverityInfo, OutcomePending,
		ResourceExecution, cp.ExecutionID.String(), CategoryReview, nil,
		"graph", cp.Graph,
		"node", node,
		"items", items,
	)
}

// OnExecutionResumed implements ext.ExecutionResumed. A resume value that
// is a list of reviewed items is summarised by its agregar flags.
func (e *Extension) OnExecutionResumed(ctx context.Context, cp *checkpoint.Checkpoint, node string, value any) error {
	kv := []any{
		"graph", cp.Graph,
		"node", node,
		"review_id", id.NewReviewID().String(),
	}
	if list, ok := value.([]any); ok {
		accepted, rejected := 0, 0
		for _, it := range list {
			m, _ := it.(map[string]any)
			if add, _ := m["agregar"].(bool); add {
				accepted++
			} else {
				rejected++
			}
		}
		kv = append(kv, "accepted", accepted, "rejected", rejected)
	}
	return e.record(ctx, ActionReviewDecided, SeverityInfo, OutcomeSuccess,
		ResourceExecution, cp.ExecutionID.String(), CategoryReview, nil, kv...)
}

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration) error {
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, cp.ExecutionID.String(), CategoryExecution, nil,
		"graph", cp.Graph,
		"steps", cp.Step,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (e *Extension) OnExecutionFailed(ctx context.Context, cp *checkpoint.Checkpoint, execErr error) error {
	return e.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceExecution, cp.ExecutionID.String(), CategoryExecution, execErr,
		"graph", cp.Graph,
		"completed_nodes", len(cp.Position.Completed),
	)
}

// OnCheckpointsSwept implements ext.CheckpointsSwept.
func (e *Extension) OnCheckpointsSwept(ctx context.Context, status checkpoint.Status, count int64) error {
	return e.record(ctx, ActionCheckpointsSwept, SeverityInfo, OutcomeSuccess,
		ResourceCheckpoint, "", CategoryRetention, nil,
		"status", string(status),
		"count", count,
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
