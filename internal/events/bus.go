// Package events is the in-process notification bus that replaces global
// hook registries. One Bus is built at startup and passed to every component
// that publishes or listens.
package events

import "sync"

// Topic names a class of event.
type Topic string

const (
	// DataLoaded fires after a table was (re)loaded from the backing sheet.
	DataLoaded Topic = "data.loaded"
	// DataChanged fires after a successful mutation of a table.
	DataChanged Topic = "data.changed"
	// RefreshRequested asks views to re-read everything, e.g. after a wizard closes.
	RefreshRequested Topic = "refresh.requested"
)

// Op is the mutation behind a DataChanged event.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is delivered to subscribers.
type Event struct {
	Topic Topic
	Table string
	Op    Op
	IDs   []string
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Topic]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]Handler)}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers e to every subscriber of e.Topic. A nil bus drops events.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Topic]))
	for _, h := range b.subs[e.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
