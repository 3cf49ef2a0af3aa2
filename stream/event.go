// Package stream fans execution lifecycle events out to live subscribers.
// The Broker is an ext.Extension; register it on the engine and subscribe
// by topic.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Execution events.
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionSuspended EventType = "execution.suspended"
	EventExecutionResumed   EventType = "execution.resumed"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"

	// Node events.
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"

	// Retention events.
	EventCheckpointsSwept EventType = "checkpoints.swept"
)

// Terminal reports whether no further events follow for the execution.
func (t EventType) Terminal() bool {
	return t == EventExecutionCompleted || t == EventExecutionFailed
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity channel this event was published on.
	Topic string `json:"topic"`

	// Graph names the graph of the execution, when there is one.
	Graph string `json:"graph,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ExecutionEventData is the payload for execution and node events.
type ExecutionEventData struct {
	ExecutionID string `json:"execution_id"`
	Graph       string `json:"graph"`
	Status      string `json:"status"`
	Step        int64  `json:"step"`
	Node        string `json:"node,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`

	// Payload is what a suspended node handed to the caller.
	Payload any `json:"payload,omitempty"`
}

// SweepEventData is the payload for retention sweeps.
type SweepEventData struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
