package event

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowFireThreshold is the default whole-call duration above which Fire logs
// a warning.
const SlowFireThreshold = 5 * time.Millisecond

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// logger receives registration and slow-fire diagnostics.
	logger zerolog.Logger

	// slowFire is the whole-call duration that triggers a warning.
	slowFire time.Duration

	// metrics records fire timings. Nil disables collection.
	metrics *Metrics
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger:   zerolog.Nop(),
		slowFire: SlowFireThreshold,
	}
}

// WithLogger sets the bus logger.
func WithLogger(l zerolog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = l.With().Str("component", "event").Logger()
	}
}

// WithSlowFireThreshold overrides SlowFireThreshold.
func WithSlowFireThreshold(d time.Duration) BusOption {
	return func(c *busConfig) {
		if d > 0 {
			c.slowFire = d
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) BusOption {
	return func(c *busConfig) {
		c.metrics = m
	}
}
