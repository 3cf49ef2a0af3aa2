package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionExecutionStarted   = "execution.started"
	ActionNodeCompleted      = "node.completed"
	ActionNodeFailed         = "node.failed"
	ActionReviewRequested    = "review.requested"
	ActionReviewDecided      = "review.decided"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionCheckpointsSwept   = "checkpoints.swept"
)

// Audit event categories group related actions.
const (
	CategoryExecution = "drafter.execution"
	CategoryReview    = "drafter.review"
	CategoryRetention = "drafter.retention"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceExecution  = "execution"
	ResourceCheckpoint = "checkpoint"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionExecutionStarted,
		ActionNodeCompleted,
		ActionNodeFailed,
		ActionReviewRequested,
		ActionReviewDecided,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionCheckpointsSwept,
	}
}
