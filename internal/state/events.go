package state

import (
	"log/slog"
	"sync"
	"time"
)

// Event types
const (
	EventChange     = "change"
	EventSnapshot   = "snapshot"
	EventConnection = "connection"
	// EventInit asks notifiers to re-announce the topology. Data is a Snapshot.
	EventInit = "init"
)

// Event is published on the EventBus. Data is a Change for EventChange,
// a Snapshot for EventSnapshot and EventInit, and a ConnectionState for
// EventConnection.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Change is one edge-triggered property update.
type Change struct {
	Kind     Kind        `json:"kind"`
	ID       int         `json:"id,omitempty"`
	Node     string      `json:"node"`
	Property string      `json:"property"`
	Value    interface{} `json:"value"`
	Time     time.Time   `json:"time"`
}

// ConnectionState reports the protocol session state.
type ConnectionState struct {
	State string    `json:"state"`
	Time  time.Time `json:"time"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// Emitter receives events from the store and the session.
type Emitter interface {
	Emit(Event)
}

// EventBus provides pub/sub for state events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls every matching handler synchronously; a panicking handler is
// recovered and logged. Handlers must not block on protocol I/O.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
