package native

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/hostkit/internal/plugin"
)

var (
	// ErrNilFactory is returned when registering a nil factory.
	ErrNilFactory = errors.New("nil factory")

	// ErrEntryExists is returned when an entry name is registered twice.
	ErrEntryExists = errors.New("entry already registered")

	// ErrUnknownEntry is returned when a descriptor names an entry with no
	// registered factory.
	ErrUnknownEntry = errors.New("unknown entry")
)

// Factory creates a plugin instance.
type Factory func(ctx context.Context, init plugin.InitContext) (any, error)

// Registry maps entry names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under entry.
func (r *Registry) Register(entry string, f Factory) error {
	if entry == "" {
		return fmt.Errorf("%w: empty entry name", ErrUnknownEntry)
	}
	if f == nil {
		return fmt.Errorf("%q: %w", entry, ErrNilFactory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[entry]; exists {
		return fmt.Errorf("%q: %w", entry, ErrEntryExists)
	}
	r.factories[entry] = f
	return nil
}

// Lookup returns the factory registered under entry.
func (r *Registry) Lookup(entry string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[entry]
	return f, ok
}

// Entries returns the registered entry names, sorted.
func (r *Registry) Entries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for name, f := range r.factories {
		c.factories[name] = f
	}
	return c
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the process-wide registry used by loaders
// created with a nil registry.
func Register(entry string, f Factory) error {
	return defaultRegistry.Register(entry, f)
}

// MustRegister is like Register but panics on error. It is meant for init
// functions.
func MustRegister(entry string, f Factory) {
	if err := Register(entry, f); err != nil {
		panic(err)
	}
}

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}
