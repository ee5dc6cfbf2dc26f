package plugin

import "time"

// Reasons a discovered plugin was not loaded.
const (
	SkipDecode      = "decode"
	SkipDuplicate   = "duplicate"
	SkipCycle       = "cycle"
	SkipDependency  = "dependency"
	SkipInstantiate = "instantiate"
)

// Report summarizes one LoadPlugins call.
type Report struct {
	// Cycle correlates the log lines of this call.
	Cycle string `json:"cycle"`

	// Dir is the scanned directory.
	Dir string `json:"dir"`

	// Loaded lists the IDs loaded by this call, in load order.
	Loaded []string `json:"loaded"`

	// Skipped lists candidates that were not loaded.
	Skipped []Skip `json:"skipped,omitempty"`

	// Duration is the wall time of the call.
	Duration time.Duration `json:"duration"`
}

// Skip records one candidate that was not loaded.
type Skip struct {
	// ID is empty when the descriptor could not be decoded.
	ID string `json:"id,omitempty"`

	// Path is the candidate location.
	Path string `json:"path"`

	// Reason is one of the Skip constants.
	Reason string `json:"reason"`

	// Err is the cause.
	Err error `json:"-"`
}

// Message returns the rendered cause, or "" when there is none.
func (s Skip) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

func (r *Report) skip(s Skip) {
	r.Skipped = append(r.Skipped, s)
}
