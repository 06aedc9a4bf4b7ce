package changefeed

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Resource names for the tables the subsystem watches.
const (
	ResourceSessions  = "sessions"
	ResourceIntervals = "status_intervals"
	ResourceReports   = "reports"
)

// EventType is the row-level change kind.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Notification announces that a row of Resource changed. It carries keys
// only: consumers must re-fetch authoritative state through the snapshot
// builder rather than trust any payload here.
type Notification struct {
	Resource  string
	Event     EventType
	Key       string
	SessionID string
}

// Feed is the generic change-data-capture surface. Any backend with logical
// replication, triggers, or polling can implement it; the in-process Bus
// below is the default.
type Feed interface {
	Subscribe(resource string) *Subscription
}

// Subscription is one consumer's handle on a resource feed. Close is
// idempotent and safe to call from any goroutine.
type Subscription struct {
	id       string
	resource string
	c        chan Notification
	bus      *Bus
	once     sync.Once
}

// C returns the notification channel. It is closed when the subscription is
// closed or the bus shuts down.
func (s *Subscription) C() <-chan Notification {
	return s.c
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.c)
	})
}

// Bus is an in-process Feed implementation fanning notifications out to all
// subscribers of a resource. A subscriber that cannot keep up has the
// notification dropped; that is acceptable because consumers re-snapshot on
// every wakeup, so a later notification carries the same information.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a new consumer for a resource.
func (b *Bus) Subscribe(resource string) *Subscription {
	sub := &Subscription{
		id:       uuid.NewString(),
		resource: resource,
		c:        make(chan Notification, 64),
		bus:      b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.c)
		return sub
	}
	byID, ok := b.subs[resource]
	if !ok {
		byID = make(map[string]*Subscription)
		b.subs[resource] = byID
	}
	byID[sub.id] = sub
	return sub
}

// Publish fans a notification out to every subscriber of its resource.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs[n.Resource] {
		select {
		case sub.c <- n:
		default:
			log.Printf("changefeed: subscriber %s lagging on %s, dropping notification", sub.id, n.Resource)
		}
	}
}

// Shutdown closes every subscription. Subsequent publishes are no-ops.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, byID := range b.subs {
		for _, sub := range byID {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.c) })
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if byID, ok := b.subs[sub.resource]; ok {
		delete(byID, sub.id)
	}
}
