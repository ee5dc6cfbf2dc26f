package plugin

import (
	"errors"
	"fmt"

	"github.com/dshills/hostkit/internal/graph"
)

// Plugin system errors.
var (
	// ErrNotDirectory is returned when LoadPlugins is given a path that is
	// not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrInvalidLoader is returned when a loader is nil or unnamed.
	ErrInvalidLoader = errors.New("invalid loader")

	// ErrLoaderExists is returned when a loader name is already registered.
	ErrLoaderExists = errors.New("loader already registered")

	// ErrInvalidDescriptor is returned when a decoded descriptor lacks
	// required fields.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrDuplicateID is returned when two descriptors in one batch share an ID.
	ErrDuplicateID = errors.New("duplicate plugin id")

	// ErrDependencyUnsatisfied is matched by every DependencyError.
	ErrDependencyUnsatisfied = errors.New("plugin dependency unsatisfied")

	// ErrLoaderFailure is matched by every LoaderError.
	ErrLoaderFailure = errors.New("plugin loader failure")

	// ErrNilInstance is returned when a loader produces a nil instance.
	ErrNilInstance = errors.New("loader returned a nil instance")

	// ErrInstanceNotComparable is returned when an instance cannot be used
	// as an identity key.
	ErrInstanceNotComparable = errors.New("plugin instance is not comparable")

	// ErrDuplicateInstance is returned when a loader hands out an instance
	// that already belongs to another plugin.
	ErrDuplicateInstance = errors.New("plugin instance already registered")

	// ErrCycleDetected is returned when the batch dependency graph has a
	// cycle. Nothing from the batch is loaded.
	ErrCycleDetected = graph.ErrCycleDetected
)

// DependencyError reports a dependency that is missing or loaded at a
// different version.
type DependencyError struct {
	// Plugin is the ID of the plugin that declared the dependency.
	Plugin string

	// Dependency is the unsatisfied declaration.
	Dependency Dependency

	// Found is the version actually loaded, empty when the dependency is
	// not loaded at all.
	Found string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	if e.Found == "" {
		return fmt.Sprintf("plugin %s: dependency %s@%s is not loaded", e.Plugin, e.Dependency.ID, e.Dependency.Version)
	}
	return fmt.Sprintf("plugin %s: dependency %s requires version %s, found %s",
		e.Plugin, e.Dependency.ID, e.Dependency.Version, e.Found)
}

// Is allows errors.Is to match DependencyError with ErrDependencyUnsatisfied.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyUnsatisfied
}

// LoaderError wraps a failure reported by, or caused by, a Loader.
type LoaderError struct {
	// Op is "decode" or "instantiate".
	Op string

	// Loader is the loader name.
	Loader string

	// Path is the candidate location.
	Path string

	// ID is the plugin ID, empty for decode failures.
	ID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LoaderError) Error() string {
	target := e.Path
	if e.ID != "" {
		target = e.ID
	}
	return fmt.Sprintf("%s loader: %s %s: %v", e.Loader, e.Op, target, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoaderError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match LoaderError with ErrLoaderFailure.
func (e *LoaderError) Is(target error) bool {
	return target == ErrLoaderFailure
}
