package host

import (
	"github.com/rs/zerolog"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/plugin/native"
)

type options struct {
	logger       zerolog.Logger
	natives      *native.Registry
	events       []event.Event
	eventLogSize int
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the root logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNativeRegistry sets the factories available to native plugins.
// By default the runtime uses a copy of native.Default().
func WithNativeRegistry(r *native.Registry) Option {
	return func(o *options) {
		o.natives = r
	}
}

// WithEvents adds event types scripts may subscribe to by name.
func WithEvents(samples ...event.Event) Option {
	return func(o *options) {
		o.events = append(o.events, samples...)
	}
}

// WithEventLogSize sets the capacity of the built-in event log.
func WithEventLogSize(n int) Option {
	return func(o *options) {
		o.eventLogSize = n
	}
}
