// Package eventbus is the in-process publish/subscribe channel the control
// network components use to talk to each other without direct coupling.
//
// Delivery is synchronous: Publish calls every matching handler in
// subscription order before it returns. A handler that panics is recovered and
// logged; the remaining handlers still run.
package eventbus

import (
	"sync"
	"time"
)

// Logger defines the logging interface used by the Bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Event is a single published occurrence.
type Event struct {
	Name    Name      `json:"name"`
	Source  string    `json:"source"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// Handler receives events. Handlers run on the publisher's goroutine.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	id   uint64
	name Name
	all  bool
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous, ordered event bus.
//
// Subscribe and Unsubscribe may be called from inside a handler; changes take
// effect from the next Publish.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	named  map[Name][]entry
	all    []entry
	logger Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		named:  make(map[Name][]entry),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used to report handler panics.
func (b *Bus) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name Name, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.named[name] = append(b.named[name], entry{id: b.nextID, handler: h})
	return Subscription{id: b.nextID, name: name}
}

// SubscribeAll registers h for every event. Wildcard handlers run after the
// handlers subscribed to the specific name.
func (b *Bus) SubscribeAll(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.all = append(b.all, entry{id: b.nextID, handler: h})
	return Subscription{id: b.nextID, all: true}
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.all {
		b.all = removeEntry(b.all, s.id)
		return
	}
	list := removeEntry(b.named[s.name], s.id)
	if len(list) == 0 {
		delete(b.named, s.name)
		return
	}
	b.named[s.name] = list
}

func removeEntry(list []entry, id uint64) []entry {
	for i, e := range list {
		if e.id == id {
			out := make([]entry, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}

// Publish delivers ev to every matching handler and returns once all of them
// have run. A zero Time is left as is; publishers stamp their own clock.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	named := b.named[ev.Name]
	all := b.all
	logger := b.logger
	b.mu.RUnlock()

	// Slices are replaced, never mutated in place, so the snapshot is stable.
	for _, e := range named {
		b.dispatch(logger, e.handler, ev)
	}
	for _, e := range all {
		b.dispatch(logger, e.handler, ev)
	}
}

func (b *Bus) dispatch(logger Logger, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"event", string(ev.Name),
				"source", ev.Source,
				"panic", r,
			)
		}
	}()
	h(ev)
}

// SubscriberCount returns the number of handlers that would receive an event
// with the given name, including wildcard handlers.
func (b *Bus) SubscriberCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.named[name]) + len(b.all)
}

// Close drops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.named = make(map[Name][]entry)
	b.all = nil
}
