// Package eventbus implements the in-process pub/sub primitive of §4.M.
// Delivery is best-effort and non-blocking: a subscriber with a full
// buffer misses an event rather than stalling the publisher, using
// eventq.Offer to perform that non-blocking, close-safe send.
package eventbus

import (
	"sync"

	"github.com/agentharness/harness/internal/eventq"
)

// Type is one of the six event kinds named in §4.M.
type Type string

const (
	SessionStarted   Type = "session:started"
	SessionOutput    Type = "session:output"
	SessionWaiting   Type = "session:waiting"
	SessionCompleted Type = "session:completed"
	SessionFailed    Type = "session:failed"
	RecoveryComplete Type = "recovery:complete"
)

// Event is the payload delivered to subscribers. Fields not relevant to a
// given Type are left zero-valued.
type Event struct {
	Type      Type
	SessionID string

	// WaitType / MenuOptions populated for SessionWaiting.
	WaitType    string
	MenuOptions int

	// Reason populated for SessionFailed (e.g. "exit code 1", "signal 9").
	Reason string

	// RecoveryCount / RecoveryIDs populated for RecoveryComplete.
	RecoveryCount int
	RecoveryIDs   []string
}

// subscriber is one registered listener, optionally filtered to a set of
// session ids and a set of event types.
type subscriber struct {
	ch    chan Event
	ids   map[string]bool // nil means "all sessions"
	types map[Type]bool   // nil means "all types"
}

func (s *subscriber) matches(e Event) bool {
	if s.ids != nil && !s.ids[e.SessionID] {
		return false
	}
	if s.types != nil && !s.types[e.Type] {
		return false
	}
	return true
}

// Bus is the process-wide event bus. The zero value is not usable; use
// New.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscription is a handle returned by Subscribe; call Close to stop
// receiving and release the channel.
type Subscription struct {
	bus *Bus
	id  int
	C   <-chan Event
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a listener. sessionIDs, if non-empty, restricts
// delivery to those sessions; types, if non-empty, restricts delivery to
// those event types. bufSize controls how many events may be queued
// before further events for this subscriber are dropped.
func (b *Bus) Subscribe(sessionIDs []string, types []Type, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 16
	}

	sub := &subscriber{ch: make(chan Event, bufSize)}
	if len(sessionIDs) > 0 {
		sub.ids = make(map[string]bool, len(sessionIDs))
		for _, id := range sessionIDs {
			sub.ids[id] = true
		}
	}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{bus: b, id: id, C: sub.ch}
}

// Publish delivers e to every matching subscriber without blocking. A
// subscriber whose buffer is full does not receive this event; it is
// responsible for keeping up or for relying on the State-Change Waiter's
// synchronous pre-subscribe scan to avoid missing a transition entirely.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.matches(e) {
			continue
		}
		eventq.Offer(sub.ch, e)
	}
}

// SubscriberCount returns the number of currently registered subscribers,
// for metrics exposition.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
