package plugin

// State represents the lifecycle state of a loaded plugin.
type State int32

// Plugin states.
const (
	// StateEnabled - Plugin is instantiated and registered.
	StateEnabled State = iota

	// StateDisabling - Plugin is being shut down.
	StateDisabling

	// StateDisabled - Plugin has been shut down and removed from the manager.
	StateDisabled
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabling:
		return "disabling"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
