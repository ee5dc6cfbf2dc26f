package events

import "time"

// PluginEnabled is fired after a plugin has been instantiated and its
// listeners registered.
type PluginEnabled struct {
	// ID is the unique plugin identifier.
	ID string

	// Name is the display name.
	Name string

	// Version is the declared version.
	Version string

	// Loader names the loader that produced the plugin.
	Loader string

	// Path is the plugin's source location, if known.
	Path string
}

// EventName implements event.Event.
func (PluginEnabled) EventName() string { return "plugin.enabled" }

// PluginDisabled is fired before a plugin is shut down.
type PluginDisabled struct {
	ID      string
	Name    string
	Version string
}

// EventName implements event.Event.
func (PluginDisabled) EventName() string { return "plugin.disabled" }

// PluginSkipped is fired when a discovered plugin is not loaded.
type PluginSkipped struct {
	// ID is empty when the descriptor could not be decoded.
	ID string

	// Path is the candidate's location.
	Path string

	// Reason is a short machine-readable cause, e.g. "dependency".
	Reason string

	// Error is the rendered failure.
	Error string
}

// EventName implements event.Event.
func (PluginSkipped) EventName() string { return "plugin.skipped" }

// PluginsLoaded is fired at the end of every load cycle.
type PluginsLoaded struct {
	// Cycle correlates log lines of one load cycle.
	Cycle string

	// Dir is the directory that was scanned.
	Dir string

	// Loaded lists the IDs loaded by this cycle, in load order.
	Loaded []string

	// Skipped is the number of candidates not loaded.
	Skipped int

	// Duration is the wall time of the cycle.
	Duration time.Duration
}

// EventName implements event.Event.
func (PluginsLoaded) EventName() string { return "plugins.loaded" }
