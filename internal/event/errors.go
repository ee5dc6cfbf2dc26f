package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidHandler is matched by every ConfigurationError.
	ErrInvalidHandler = errors.New("invalid handler")

	// ErrDispatch is matched by every DispatchError.
	ErrDispatch = errors.New("event dispatch failed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilEvent is returned when Fire is called with a nil event.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrEventNameConflict is returned when a catalog name is already bound to
	// another type.
	ErrEventNameConflict = errors.New("event name already registered")

	// ErrUnknownEvent is returned when a catalog lookup by name fails.
	ErrUnknownEvent = errors.New("unknown event")
)

// ConfigurationError reports a listener that cannot be registered.
// Nothing from the failing RegisterListeners call is registered.
type ConfigurationError struct {
	// Owner describes the registering owner.
	Owner string

	// Listener describes the listener.
	Listener string

	// Handler is the offending handler name, if any.
	Handler string

	// Reason explains the failure.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := "invalid listener " + e.Listener
	if e.Owner != "" {
		msg += " for owner " + e.Owner
	}
	if e.Handler != "" {
		msg += " handler " + e.Handler
	}
	return msg + ": " + e.Reason
}

// Is allows errors.Is to match ConfigurationError with ErrInvalidHandler.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidHandler
}

// DispatchError wraps the failure of one handler during Fire.
type DispatchError struct {
	// Handler is the failing handler's name.
	Handler string

	// Listener describes the listener that declared the handler.
	Listener string

	// Event is the name of the event being fired.
	Event string

	// Err is the handler's error or a *PanicError.
	Err error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s (%s): %v", e.Event, e.Handler, e.Listener, e.Err)
}

// Unwrap returns the underlying error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match DispatchError with ErrDispatch.
func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
