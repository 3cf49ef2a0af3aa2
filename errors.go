package drafter

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("drafter: no store configured")
	ErrStoreClosed     = errors.New("drafter: store closed")
	ErrMigrationFailed = errors.New("drafter: migration failed")

	// Not found errors.
	ErrGraphNotFound      = errors.New("drafter: graph not found")
	ErrCheckpointNotFound = errors.New("drafter: checkpoint not found")

	// ErrCheckpointConflict means another writer advanced the checkpoint
	// first.
	ErrCheckpointConflict = errors.New("drafter: checkpoint changed concurrently")

	// Construction errors. Always fatal and surfaced before any node runs.
	ErrTopology = errors.New("drafter: invalid graph topology")
	ErrSchema   = errors.New("drafter: invalid state schema")

	// Per-execution errors.
	ErrUnknownField    = errors.New("drafter: unknown state field")
	ErrMergeConflict   = errors.New("drafter: merge conflict")
	ErrExternalCall    = errors.New("drafter: external call failed")
	ErrExternalTimeout = errors.New("drafter: external call timed out")
	ErrStaleResume     = errors.New("drafter: stale resume")
	ErrExecutionBusy   = errors.New("drafter: execution already running")
	ErrExecutionExists = errors.New("drafter: execution already exists")
)
