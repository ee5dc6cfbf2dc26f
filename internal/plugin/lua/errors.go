package lua

import (
	"errors"
	"fmt"
)

var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrCallAborted is returned when a script call exceeds its deadline or
	// its context is cancelled.
	ErrCallAborted = errors.New("lua call aborted")

	// ErrNoManifest is returned when a package directory has no descriptor.
	ErrNoManifest = errors.New("no plugin descriptor")

	// ErrBadEntry is returned when the entry script is missing or escapes
	// the package directory.
	ErrBadEntry = errors.New("invalid entry script")

	// ErrLateSubscription is raised when hostkit.on is called after the
	// script has finished loading.
	ErrLateSubscription = errors.New("hostkit.on called after load")
)

// ScriptError is a failure raised by plugin script code.
type ScriptError struct {
	// Plugin is the plugin ID.
	Plugin string

	// Func names the script function, e.g. "enable" or a handler label.
	Func string

	Err error
}

// Error implements error.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua plugin %s: %s: %v", e.Plugin, e.Func, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}
