package host

import "errors"

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("runtime already started")

	// ErrNotStarted is returned by operations that need a started runtime.
	ErrNotStarted = errors.New("runtime not started")

	// ErrStopped is returned after Shutdown.
	ErrStopped = errors.New("runtime stopped")
)
