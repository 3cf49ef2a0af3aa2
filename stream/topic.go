package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Global topics. Scoped topics are built with ExecutionTopic and
// GraphTopic.
const (
	// TopicExecutions carries every execution.* and node.* event.
	TopicExecutions = "executions"
	// TopicFirehose carries every event.
	TopicFirehose = "firehose"
)

const (
	scopeExecution = "execution"
	scopeGraph     = "graph"
)

// ExecutionTopic returns the topic of one execution's events.
func ExecutionTopic(execID string) string { return scopeExecution + ":" + execID }

// GraphTopic returns the topic of all executions of a graph.
func GraphTopic(graph string) string { return scopeGraph + ":" + graph }

// ParseTopicEntity splits a scoped topic such as "graph:pliego" into its
// scope and key. Global topics return empty strings.
func ParseTopicEntity(topic string) (entityType, entityID string) {
	scope, key, ok := strings.Cut(topic, ":")
	if !ok {
		return "", ""
	}
	return scope, key
}

// ValidateTopic reports whether topic names something the broker
// publishes to.
func ValidateTopic(topic string) error {
	if topic == TopicExecutions || topic == TopicFirehose {
		return nil
	}
	scope, key := ParseTopicEntity(topic)
	if scope == "" || key == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	if scope != scopeExecution && scope != scopeGraph {
		return fmt.Errorf("stream: unknown topic scope %q", scope)
	}
	return nil
}

// resolveTopics lists the topics evt is published on, broadest first.
func resolveTopics(evt *Event) []string {
	topics := make([]string, 0, 4)
	topics = append(topics, TopicFirehose)
	if kind, _, _ := strings.Cut(string(evt.Type), "."); kind == "execution" || kind == "node" {
		topics = append(topics, TopicExecutions)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	if evt.Graph != "" {
		topics = append(topics, GraphTopic(evt.Graph))
	}
	return topics
}

// TopicRegistry maps topics to their subscribers. A topic exists while it
// has at least one subscriber.
type TopicRegistry struct {
	mu      sync.RWMutex
	members map[string]map[string]*Subscriber // topic -> subscriber id -> subscriber
	joined  map[string]map[string]struct{}    // subscriber id -> topics
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		members: make(map[string]map[string]*Subscriber),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Subscribe puts sub on topic.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.members[topic] == nil {
		tr.members[topic] = make(map[string]*Subscriber)
	}
	tr.members[topic][sub.ID()] = sub

	if tr.joined[sub.ID()] == nil {
		tr.joined[sub.ID()] = make(map[string]struct{})
	}
	tr.joined[sub.ID()][topic] = struct{}{}
}

// Unsubscribe takes a subscriber off one topic.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.leave(topic, subscriberID)
}

// UnsubscribeAll takes a subscriber off every topic.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for topic := range tr.joined[subscriberID] {
		tr.leave(topic, subscriberID)
	}
}

// leave must be called with mu held.
func (tr *TopicRegistry) leave(topic, subscriberID string) {
	if subs := tr.members[topic]; subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.members, topic)
		}
	}
	if topics := tr.joined[subscriberID]; topics != nil {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(tr.joined, subscriberID)
		}
	}
}

// Topics returns the topics a subscriber is on.
func (tr *TopicRegistry) Topics(subscriberID string) []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]string, 0, len(tr.joined[subscriberID]))
	for topic := range tr.joined[subscriberID] {
		out = append(out, topic)
	}
	return out
}

// Broadcast offers evt once to every subscriber on any of topics and
// returns how many took it and how many did not.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) (delivered, dropped int) {
	tr.mu.RLock()
	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for subID, sub := range tr.members[topic] {
			targets[subID] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range targets {
		if sub.send(evt) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// TopicCount returns the number of topics with subscribers.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.members)
}

// SubscriberCount returns the number of subscribers on topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.members[topic])
}
