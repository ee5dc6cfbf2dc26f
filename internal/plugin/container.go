package plugin

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Container holds a loaded plugin: its descriptor, its live instance and
// its logger.
type Container struct {
	descriptor *Descriptor
	instance   any
	logger     zerolog.Logger
	dataDir    string
	loadedAt   time.Time
	state      atomic.Int32
}

// ID returns the plugin ID.
func (c *Container) ID() string {
	return c.descriptor.ID
}

// Descriptor returns a copy of the plugin descriptor.
func (c *Container) Descriptor() *Descriptor {
	return c.descriptor.Clone()
}

// Version returns the loaded version.
func (c *Container) Version() string {
	return c.descriptor.Version
}

// Instance returns the plugin's live instance.
func (c *Container) Instance() any {
	return c.instance
}

// Logger returns the plugin's logger.
func (c *Container) Logger() zerolog.Logger {
	return c.logger
}

// DataDir returns the plugin's data directory.
func (c *Container) DataDir() string {
	return c.dataDir
}

// LoadedAt returns when the plugin was registered.
func (c *Container) LoadedAt() time.Time {
	return c.loadedAt
}

// State returns the current lifecycle state.
func (c *Container) State() State {
	return State(c.state.Load())
}

func (c *Container) setState(s State) {
	c.state.Store(int32(s))
}

// String returns the plugin ID and version.
func (c *Container) String() string {
	return c.descriptor.ID + "@" + c.descriptor.Version
}
