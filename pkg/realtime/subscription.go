package realtime

import (
	"sync"
	"time"
)

// FilterAll subscribes to every session.
const FilterAll = "*"

// queueCap bounds each subscriber's outbound queue.
const queueCap = 256

// Subscription is one subscriber's bounded event feed. The consumer reads
// Events; a full queue drops the oldest entries and injects a single lagged
// marker per overflow burst so the consumer knows to resync via Snapshot.
type Subscription struct {
	ID     string
	Filter string // session id or FilterAll

	events chan Event

	mu         sync.Mutex
	closed     bool
	inOverflow bool
	lastAck    time.Time
}

func newSubscription(id, filter string, now time.Time) *Subscription {
	return &Subscription{
		ID:      id,
		Filter:  filter,
		events:  make(chan Event, queueCap),
		lastAck: now,
	}
}

// Events is the subscriber's read side. Closed on unsubscribe or when the
// subscriber misses heartbeats past the deadline.
func (s *Subscription) Events() <-chan Event { return s.events }

// Ack marks the subscriber alive. The websocket bridge calls this on pongs
// and client messages.
func (s *Subscription) Ack(now time.Time) {
	s.mu.Lock()
	s.lastAck = now
	s.mu.Unlock()
}

func (s *Subscription) ackedSince(deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastAck.Before(deadline)
}

// matches reports whether the subscription wants events for the session.
func (s *Subscription) matches(sessionID string) bool {
	return s.Filter == FilterAll || s.Filter == sessionID
}

// publish enqueues without ever blocking the emitter. On overflow the two
// oldest entries make room for a lagged marker plus the new event.
func (s *Subscription) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.trySend(e) {
		s.inOverflow = false
		return
	}

	s.dropOldest()
	if !s.inOverflow {
		s.inOverflow = true
		s.dropOldest()
		s.trySend(Event{Type: EventLagged, Timestamp: e.Timestamp})
	}
	s.trySend(e)
}

// trySend is non-blocking; caller holds s.mu.
func (s *Subscription) trySend(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// dropOldest discards the head of the queue if any; caller holds s.mu.
func (s *Subscription) dropOldest() {
	select {
	case <-s.events:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
