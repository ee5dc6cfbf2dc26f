// Package events defines the lifecycle events fired by the host runtime and
// the plugin manager.
//
// Every type here implements event.Event by value. Plugins subscribe to them
// with event.On or, from scripts, by the names returned from EventName:
//
//	plugin.enabled     - a plugin finished loading
//	plugin.disabled    - a plugin is about to be shut down
//	plugin.skipped     - a discovered plugin was not loaded
//	plugins.loaded     - a load cycle finished
//	host.started       - the runtime finished its initial load
//	host.stopping      - the runtime is shutting down
package events

import "github.com/dshills/hostkit/internal/event"

// All returns one sample of every lifecycle event, for populating an
// event.Catalog.
func All() []event.Event {
	return []event.Event{
		PluginEnabled{},
		PluginDisabled{},
		PluginSkipped{},
		PluginsLoaded{},
		HostStarted{},
		HostStopping{},
	}
}
