package events

// HostStarted is fired once the runtime has completed its initial load.
type HostStarted struct {
	// Plugins is the number of loaded plugins.
	Plugins int
}

// EventName implements event.Event.
func (HostStarted) EventName() string { return "host.started" }

// HostStopping is fired when the runtime begins shutting down, before any
// plugin is disabled.
type HostStopping struct {
	// Reason describes why the host is stopping, e.g. a signal name.
	Reason string
}

// EventName implements event.Event.
func (HostStopping) EventName() string { return "host.stopping" }
