// Package stream fans execution lifecycle events out to live subscribers.
//
// A Broker is registered as an engine extension and republishes every
// hook as an Event on the topics the event concerns. The HTTP API serves
// the execution topic as server-sent events.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/ext"
)

var (
	_ ext.Extension          = (*Broker)(nil)
	_ ext.ExecutionStarted   = (*Broker)(nil)
	_ ext.NodeCompleted      = (*Broker)(nil)
	_ ext.NodeFailed         = (*Broker)(nil)
	_ ext.ExecutionSuspended = (*Broker)(nil)
	_ ext.ExecutionResumed   = (*Broker)(nil)
	_ ext.ExecutionCompleted = (*Broker)(nil)
	_ ext.ExecutionFailed    = (*Broker)(nil)
	_ ext.CheckpointsSwept   = (*Broker)(nil)
	_ ext.Shutdown           = (*Broker)(nil)
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the starting credit of a new subscriber.
const DefaultCredits int64 = 1000

// Broker turns extension hooks into events. Publishing never blocks the
// executor.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscriber
	seq  int64

	events    atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64

	bufferSize int
	credits    int64
	now        func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the starting credit of new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.credits = credits }
}

// NewBroker creates a Broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		subs:       make(map[string]*Subscriber),
		bufferSize: DefaultBufferSize,
		credits:    DefaultCredits,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe registers a subscriber under id on topics. An existing
// subscriber with the same id is closed and replaced.
func (b *Broker) Subscribe(id string, topics ...string) *Subscriber {
	sub := NewSubscriber(id, b.bufferSize, b.credits)

	b.mu.Lock()
	old := b.subs[id]
	b.subs[id] = sub
	b.mu.Unlock()

	if old != nil {
		b.topics.UnsubscribeAll(id)
		old.Close()
	}
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeNew registers a subscriber with a generated id.
func (b *Broker) SubscribeNew(topics ...string) *Subscriber {
	b.mu.Lock()
	b.seq++
	id := "sub-" + strconv.FormatInt(b.seq, 10)
	b.mu.Unlock()
	return b.Subscribe(id, topics...)
}

// RemoveSubscriber unregisters a subscriber and closes its channel.
func (b *Broker) RemoveSubscriber(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	b.topics.UnsubscribeAll(id)
	if ok {
		sub.Close()
	}
}

// GetSubscriber returns the subscriber registered under id.
func (b *Broker) GetSubscriber(id string) (*Subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	return sub, ok
}

// BrokerStats is a point-in-time view of broker activity. Delivered and
// Dropped count per subscriber, so one event can add to both.
type BrokerStats struct {
	Topics      int   `json:"topics"`
	Subscribers int   `json:"subscribers"`
	Events      int64 `json:"events"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

// Stats returns current broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return BrokerStats{
		Topics:      b.topics.TopicCount(),
		Subscribers: n,
		Events:      b.events.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
	}
}

func (b *Broker) publish(typ EventType, topic, graph string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("stream: dropping unencodable event",
			slog.String("type", string(typ)),
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	evt := &Event{Type: typ, Timestamp: b.now(), Topic: topic, Graph: graph, Data: raw}
	delivered, dropped := b.topics.Broadcast(resolveTopics(evt), evt)

	b.events.Add(1)
	b.delivered.Add(int64(delivered))
	b.dropped.Add(int64(dropped))
}

func (b *Broker) publishExecution(typ EventType, cp *checkpoint.Checkpoint, data ExecutionEventData) {
	data.ExecutionID = cp.ExecutionID.String()
	data.Graph = cp.Graph
	data.Status = string(cp.Status)
	data.Step = cp.Step
	b.publish(typ, ExecutionTopic(data.ExecutionID), cp.Graph, data)
}

func (b *Broker) OnExecutionStarted(_ context.Context, cp *checkpoint.Checkpoint) error {
	b.publishExecution(EventExecutionStarted, cp, ExecutionEventData{})
	return nil
}

func (b *Broker) OnNodeCompleted(_ context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error {
	b.publishExecution(EventNodeCompleted, cp, ExecutionEventData{Node: node, ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnNodeFailed(_ context.Context, cp *checkpoint.Checkpoint, node string, nodeErr error) error {
	b.publishExecution(EventNodeFailed, cp, ExecutionEventData{Node: node, Error: nodeErr.Error()})
	return nil
}

// OnExecutionSuspended publishes the interrupt payload so a watcher can
// render the review without a second request.
func (b *Broker) OnExecutionSuspended(_ context.Context, cp *checkpoint.Checkpoint) error {
	var data ExecutionEventData
	if s := cp.Position.Suspended; s != nil {
		data.Node = s.Node
		data.Payload = s.Payload
	}
	b.publishExecution(EventExecutionSuspended, cp, data)
	return nil
}

func (b *Broker) OnExecutionResumed(_ context.Context, cp *checkpoint.Checkpoint, node string, _ any) error {
	b.publishExecution(EventExecutionResumed, cp, ExecutionEventData{Node: node})
	return nil
}

func (b *Broker) OnExecutionCompleted(_ context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration) error {
	b.publishExecution(EventExecutionCompleted, cp, ExecutionEventData{ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnExecutionFailed(_ context.Context, cp *checkpoint.Checkpoint, execErr error) error {
	b.publishExecution(EventExecutionFailed, cp, ExecutionEventData{Error: execErr.Error()})
	return nil
}

func (b *Broker) OnCheckpointsSwept(_ context.Context, status checkpoint.Status, count int64) error {
	b.publish(EventCheckpointsSwept, "", "", SweepEventData{Status: string(status), Count: count})
	return nil
}

// OnShutdown closes every subscriber, which ends open streams.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for id, sub := range subs {
		b.topics.UnsubscribeAll(id)
		sub.Close()
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
