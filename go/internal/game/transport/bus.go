package transport

import (
	"sync"

	"github.com/geoduel/geoduel/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Handler processes a single inbound game event
type Handler func(event *events.GameEvent)

// Bus fans inbound events out to typed subscribers. Every event name holds a
// subscription list rather than a single overwritable callback, and every
// subscription returns its own unsubscribe func.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[events.EventType]map[int]Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[events.EventType]map[int]Handler),
	}
}

// Subscribe registers a handler for one event type and returns the func that
// removes it. Calling the returned func more than once is a no-op.
func (b *Bus) Subscribe(eventType events.EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[eventType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[eventType], id)
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
		})
	}
}

// Publish delivers an event to every subscriber of its type. Handlers run
// synchronously on the caller's goroutine; the engine relies on this to keep
// event application serialized with the transport's read loop. Delivery order
// across subscribers is not guaranteed.
func (b *Bus) Publish(event *events.GameEvent) {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		log.Debug().
			Str("event_type", string(event.Type)).
			Str("match_id", event.MatchID).
			Msg("no subscribers for event")
		return
	}

	for _, h := range subs {
		h(event)
	}
}
