package plugin

import (
	"runtime"

	"github.com/rs/zerolog"
)

// Option configures a Manager.
type Option func(*managerConfig)

// managerConfig contains configuration for the plugin manager.
type managerConfig struct {
	// logger is the parent of every per-plugin logger.
	logger zerolog.Logger

	// dataDir is the parent of every plugin data directory.
	dataDir string

	// workers bounds concurrent descriptor decoding.
	workers int

	// metrics records load cycles. Nil disables collection.
	metrics *Metrics
}

// defaultManagerConfig returns sensible default configuration.
func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:  zerolog.Nop(),
		dataDir: "data",
		workers: runtime.GOMAXPROCS(0),
	}
}

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = l.With().Str("component", "plugin").Logger()
	}
}

// WithDataDir sets the directory under which each plugin gets <dir>/<id>.
func WithDataDir(dir string) Option {
	return func(c *managerConfig) {
		if dir != "" {
			c.dataDir = dir
		}
	}
}

// WithDiscoveryWorkers bounds how many descriptors are decoded at once.
func WithDiscoveryWorkers(n int) Option {
	return func(c *managerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *managerConfig) {
		c.metrics = m
	}
}
