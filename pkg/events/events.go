// Package events carries repository change notifications from the places
// that cause them (repository operations, the filesystem watcher) to the
// places that consume them (the HTTP event feed).
//
// Each subscriber gets its own buffered channel and chooses the event types it
// wants. Publishing never blocks: when a subscriber's buffer is full the event
// is dropped for that subscriber and counted.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies what happened.
type Type string

const (
	// Registered is published when a file record is persisted.
	Registered Type = "registered"

	// Deleted is published when a repository operation removes a path.
	Deleted Type = "deleted"

	// Created is published when a file is created through the repository.
	Created Type = "created"

	// DirCreated is published when MakeDir creates a directory.
	DirCreated Type = "dir_created"

	// Changed is published by the filesystem watcher for out-of-band changes.
	Changed Type = "changed"

	// Removed is published by the filesystem watcher for out-of-band removals.
	Removed Type = "removed"

	// Unregistered is published when the record collector drops a record
	// whose file no longer exists.
	Unregistered Type = "unregistered"
)

// Event is a single notification. Path is relative to the repository root.
type Event struct {
	Type       Type      `json:"type"`
	Repository string    `json:"repository"`
	Path       string    `json:"path"`
	ID         int64     `json:"id,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher is the producer side of a Bus.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription receives events on C until Close is called or the bus closes.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	types map[Type]struct{}
	bus   *Bus
	id    uint64
	once  sync.Once
}

// Subscribe registers a subscriber with the given buffer size. With no types
// every event is delivered.
func (b *Bus) Subscribe(buffer int, types ...Type) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Publishing afterwards is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (s *Subscription) wants(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
