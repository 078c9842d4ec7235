package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events published on the bus
type Handler func(Event)

// Bus is an in-process publish/subscribe hub.
// Handlers run synchronously on the emitting goroutine and must not block;
// a panicking handler is logged and does not affect other subscribers.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]subscription
	log      zerolog.Logger
}

type subscription struct {
	eventType EventType // empty matches every type
	handler   Handler
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[int]subscription),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function that removes it
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	return b.add(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.add(subscription{handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Emit publishes an event to every matching subscriber
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers))
	for _, sub := range b.handlers {
		if sub.eventType == "" || sub.eventType == eventType {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range targets {
		b.dispatch(handler, event)
	}
}

func (b *Bus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event_type", string(event.Type)).Msg("Event handler panicked")
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of registered handlers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
