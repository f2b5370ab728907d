// Package events carries batch progress notifications from the engine to
// whoever is watching: the CLI progress bar, logs or tests.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Event represents a domain event that can be dispatched to observers.
type Event struct {
	// Type is the event type (e.g., "batch:state", "batch:unit")
	Type string

	// Data contains the event payload as a typed struct.
	Data any

	// Context provides execution context for the event
	Context context.Context
}

// Observer defines the interface for objects that want to be notified of events.
type Observer interface {
	// OnEvent is called when an event is dispatched.
	// Returns an error if the observer fails to handle the event.
	OnEvent(event Event) error

	// GetName returns a human-readable name for this observer (for logging/debugging).
	GetName() string

	// ShouldHandle returns true if this observer should handle the given event type.
	ShouldHandle(eventType string) bool
}

// EventDispatcher implements the Observer pattern for event distribution.
// Thread-safe for concurrent use.
type EventDispatcher struct {
	observers []Observer
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher. A nil logger uses slog.Default().
func NewEventDispatcher(logger *slog.Logger) *EventDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDispatcher{
		observers: make([]Observer, 0),
		logger:    logger,
	}
}

// Register adds an observer to the dispatcher.
func (d *EventDispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
	d.logger.Debug("Registered observer", "observer", observer.GetName())
}

// Unregister removes an observer from the dispatcher.
func (d *EventDispatcher) Unregister(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, obs := range d.observers {
		if obs == observer {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			d.logger.Debug("Unregistered observer", "observer", observer.GetName())
			return
		}
	}
}

// Dispatch sends an event to all registered observers.
// Observers are notified sequentially in the order they were registered.
// If an observer returns an error, it's logged but dispatch continues to other observers.
func (d *EventDispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}

	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, observer := range observers {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		if err := observer.OnEvent(event); err != nil {
			d.logger.Warn("Observer failed to handle event",
				"observer", observer.GetName(), "event", event.Type, "error", err)
		}
	}
}

// ObserverCount returns the number of registered observers.
func (d *EventDispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Clear removes all registered observers.
func (d *EventDispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = make([]Observer, 0)
}

// NewTypedEvent creates an Event with typed data.
func NewTypedEvent[T any](eventType string, data T, ctx context.Context) Event {
	return Event{
		Type:    eventType,
		Data:    data,
		Context: ctx,
	}
}

// GetTypedData extracts typed data from an Event.
// Returns the zero value and false if the data is not of the expected type.
func GetTypedData[T any](event Event) (T, bool) {
	var zero T
	if event.Data == nil {
		return zero, false
	}
	typed, ok := event.Data.(T)
	return typed, ok
}
