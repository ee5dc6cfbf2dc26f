package event

import (
	"context"
	"reflect"
	"strconv"
)

// Priority determines handler execution order.
// Lower values execute first.
type Priority int

const (
	// PriorityCritical is for handlers that must observe an event before anyone else.
	PriorityCritical Priority = 0

	// PriorityHigh runs before ordinary plugin handlers.
	PriorityHigh Priority = 100

	// PriorityNormal is the default priority for plugin handlers.
	PriorityNormal Priority = 200

	// PriorityLow runs after ordinary plugin handlers.
	PriorityLow Priority = 300

	// PriorityMonitor runs last. Monitor handlers should only observe.
	PriorityMonitor Priority = 400
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityMonitor:
		return "monitor"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePriority converts a priority name or integer string into a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "critical":
		return PriorityCritical, true
	case "high":
		return PriorityHigh, true
	case "normal", "":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	case "monitor":
		return PriorityMonitor, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return PriorityNormal, false
	}
	return Priority(n), true
}

// Event is implemented by every value that can be fired on the bus.
// Dispatch matches the exact dynamic type of the fired value, so a type that
// embeds another event type is a distinct event.
type Event interface {
	EventName() string
}

// Deprecated is implemented by event types scheduled for removal.
// Registering a handler for such a type logs a warning.
type Deprecated interface {
	DeprecationNotice() string
}

// Listener declares the handlers it wants registered.
type Listener interface {
	Handlers() []Handler
}

// ListenerFunc adapts a function to the Listener interface.
// A ListenerFunc value is not comparable, so wrap it in a pointer or a
// struct before registering it.
type ListenerFunc func() []Handler

// Handlers implements Listener.
func (f ListenerFunc) Handlers() []Handler {
	return f()
}

// HandlerInfo describes one registered handler.
type HandlerInfo struct {
	// Name identifies the handler within its listener.
	Name string `json:"name"`

	// Priority is the handler's execution priority.
	Priority Priority `json:"priority"`

	// Listener is the listener's dynamic type.
	Listener string `json:"listener"`

	// Owner is the owner's dynamic type or plugin ID when the owner is a
	// fmt.Stringer.
	Owner string `json:"owner"`
}

// TableEntry describes all handlers registered for one event type.
type TableEntry struct {
	// Type is the event's Go type.
	Type reflect.Type `json:"-"`

	// TypeName is Type rendered as a string.
	TypeName string `json:"type"`

	// Name is the event's EventName, when it can be derived from the type.
	Name string `json:"name"`

	// Handlers are listed in dispatch order.
	Handlers []HandlerInfo `json:"handlers"`
}

// invokeFunc runs a compiled handler against an event.
type invokeFunc func(ctx context.Context, ev Event) error
