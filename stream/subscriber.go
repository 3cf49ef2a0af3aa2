package stream

import "sync"

// Subscriber is one consumer of broker events, typically an open SSE
// connection. Delivery is credit based: every event handed over spends a
// credit, and a subscriber without credit or buffer space misses events
// instead of stalling the executor. Dropped counts the misses so a reader
// can tell its view has gaps.
type Subscriber struct {
	id string
	ch chan *Event

	mu      sync.Mutex
	credits int64
	dropped int64
	filter  func(*Event) bool
	closed  bool
}

// NewSubscriber creates a subscriber with a buffer of size events and the
// given starting credit.
func NewSubscriber(id string, size int, credits int64) *Subscriber {
	return &Subscriber{
		id:      id,
		ch:      make(chan *Event, size),
		credits: credits,
	}
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is
// removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants n more deliveries.
func (s *Subscriber) AddCredits(n int64) {
	s.mu.Lock()
	s.credits += n
	s.mu.Unlock()
}

// Credits returns the remaining credit.
func (s *Subscriber) Credits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

// Dropped returns how many events were lost for lack of credit or buffer.
// Filtered events are not counted.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// SetFilter restricts delivery to events fn accepts. A nil fn accepts all.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
}

// send hands evt over without blocking and reports whether it was taken.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return false
	case s.filter != nil && !s.filter(evt):
		return false
	case s.credits <= 0:
		s.dropped++
		return false
	}

	select {
	case s.ch <- evt:
		s.credits--
		return true
	default:
		s.dropped++
		return false
	}
}

// Close closes the event channel. Later calls are no-ops.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
