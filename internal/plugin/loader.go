package plugin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/service"
)

// Loader turns packaged plugins into live instances.
//
// Matches and Decode are called during discovery, possibly concurrently for
// different paths. Instantiate is called once per descriptor that passed
// dependency validation, in load order.
type Loader interface {
	// Name identifies the loader in logs and reports.
	Name() string

	// Matches reports whether path looks like a package this loader handles.
	Matches(path string) bool

	// Decode reads the descriptor of the package at path.
	Decode(ctx context.Context, path string) (*Descriptor, error)

	// Instantiate creates the plugin's live instance.
	// The instance must be comparable; it becomes the plugin's identity.
	Instantiate(ctx context.Context, init InitContext) (any, error)
}

// InitContext is everything a plugin receives when it is created.
type InitContext struct {
	// Descriptor is a private copy of the plugin's descriptor.
	Descriptor *Descriptor

	// Logger is scoped to the plugin.
	Logger zerolog.Logger

	// DataDir is the plugin's private data directory. It is not created.
	DataDir string

	// Events is the host event bus.
	Events *event.Bus

	// Services is the host service registry.
	Services *service.Registry
}

// Closer is implemented by plugin instances that need to release resources
// at shutdown.
type Closer interface {
	Close() error
}

// namedLoader is a loader registration.
type namedLoader struct {
	name   string
	loader Loader
}

// RegisterLoader adds a loader under name. Loaders are consulted in
// registration order during discovery.
func (m *Manager) RegisterLoader(name string, l Loader) error {
	if name == "" || l == nil {
		return ErrInvalidLoader
	}
	m.loaderMu.Lock()
	defer m.loaderMu.Unlock()

	for _, nl := range m.loaders {
		if nl.name == name {
			return fmt.Errorf("%q: %w", name, ErrLoaderExists)
		}
	}
	m.loaders = append(m.loaders, namedLoader{name: name, loader: l})
	return nil
}

// DeregisterLoader removes the loader registered under name.
// It blocks while a discovery pass is running.
func (m *Manager) DeregisterLoader(name string) bool {
	m.loaderMu.Lock()
	defer m.loaderMu.Unlock()

	for i, nl := range m.loaders {
		if nl.name == name {
			m.loaders = append(m.loaders[:i:i], m.loaders[i+1:]...)
			return true
		}
	}
	return false
}

// Loaders returns the registered loader names in registration order.
func (m *Manager) Loaders() []string {
	m.loaderMu.Lock()
	defer m.loaderMu.Unlock()

	names := make([]string, len(m.loaders))
	for i, nl := range m.loaders {
		names[i] = nl.name
	}
	return names
}
