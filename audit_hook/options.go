package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithActions limits recording to the listed actions. Without it every
// action is recorded; names that match no action have no effect.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithReviewTrail records only what a reviewer needs to reconstruct a
// document's history: review requests, review decisions and how each
// execution ended.
func WithReviewTrail() Option {
	return WithActions(
		ActionReviewRequested,
		ActionReviewDecided,
		ActionExecutionCompleted,
		ActionExecutionFailed,
	)
}

// WithLogger sets the logger used when the recorder fails.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
