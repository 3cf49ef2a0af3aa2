package redis

import "github.com/xraph/drafter/checkpoint"

// Redis key naming conventions for drafter data.
// All keys are prefixed with "drafter:" to avoid collisions.

const keyPrefix = "drafter:"

// checkpointKey returns the Hash key for an execution's checkpoint:
// drafter:checkpoint:{executionID}
func checkpointKey(execID string) string { return keyPrefix + "checkpoint:" + execID }

// updatedIndexKey is the Sorted Set of every execution id scored by
// updated_at in milliseconds.
const updatedIndexKey = keyPrefix + "checkpoints"

// statusIndexKey returns the Sorted Set of execution ids in a status.
func statusIndexKey(status checkpoint.Status) string {
	return keyPrefix + "checkpoints:status:" + string(status)
}

// graphIndexKey returns the Sorted Set of execution ids of a graph.
func graphIndexKey(graph string) string {
	return keyPrefix + "checkpoints:graph:" + graph
}

// Hash fields of a checkpoint key.
const (
	fieldData    = "data"
	fieldStatus  = "status"
	fieldGraph   = "graph"
	fieldStep    = "step"
	fieldUpdated = "updated_at"
)
