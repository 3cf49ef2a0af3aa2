// Package audithook is a Drafter extension that turns execution lifecycle
// events into an audit trail.
//
// Every hook emits a structured event through the [Recorder] interface. A
// suspension becomes a review request and the matching resume becomes a
// review decision, carrying how many items the reviewer accepted
// (agregar=true) and rejected, so the trail shows who-decided-what per
// execution. Severity is info for normal progress, warning for node
// failures and critical for failed executions.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    logger.InfoContext(ctx, evt.Action, "execution_id", evt.ResourceID, "meta", evt.Metadata)
//	    return nil
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionReviewRequested,
//	        audithook.ActionReviewDecided,
//	    ),
//	)
package audithook
