// Package ext defines the extension system for Drafter.
//
// Extensions are notified of execution lifecycle events and can react to
// them: recording metrics, writing audit logs, forwarding review decisions.
// Each lifecycle hook is a separate interface so extensions opt in only to
// the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnExecutionSuspended(ctx context.Context, cp *checkpoint.Checkpoint) error {
//	    log.Printf("execution %s waiting on %s", cp.ExecutionID, cp.Position.Suspended.Node)
//	    return nil
//	}
//
// # Execution Hooks
//
//   - [ExecutionStarted]: a new execution began
//   - [NodeCompleted]: a node finished and its update was merged
//   - [NodeFailed]: a node returned an error
//   - [ExecutionSuspended]: a node asked for external input
//   - [ExecutionResumed]: a suspended execution received its resume value
//   - [ExecutionCompleted]: the terminal node completed
//   - [ExecutionFailed]: the execution stopped on an error
//
// # Other Hooks
//
//   - [CheckpointsSwept]: the retention sweeper deleted expired checkpoints
//   - [Shutdown]: the drafter is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the execution.
package ext
