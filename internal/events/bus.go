package events

import (
	"log/slog"
	"sync"
)

// Event is anything that can travel on the Bus.
type Event interface {
	Kind() string
}

// Handler consumes one event. Handlers must not block for long: Publish runs
// them synchronously on the publisher's goroutine.
type Handler func(Event)

// Bus is a minimal in-process pub/sub. It is constructed explicitly and passed
// to components by argument; there is no package-level instance.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event kind.
func (b *Bus) Subscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers the event to every subscriber of its kind. Fire-and-forget:
// a panicking handler is logged and never propagates to the publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Kind()]
	b.mu.RUnlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked", "kind", e.Kind(), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
