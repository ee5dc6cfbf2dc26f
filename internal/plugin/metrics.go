package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for a Manager.
// A nil *Metrics records nothing.
type Metrics struct {
	loaded        prometheus.Counter
	skipped       *prometheus.CounterVec
	active        prometheus.Gauge
	cycleDuration prometheus.Histogram
}

// NewMetrics creates manager metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hostkit",
			Subsystem: "plugin",
			Name:      "loaded_total",
			Help:      "Plugins loaded",
		}),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hostkit",
				Subsystem: "plugin",
				Name:      "skipped_total",
				Help:      "Discovered plugins that were not loaded",
			},
			[]string{"reason"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostkit",
			Subsystem: "plugin",
			Name:      "active",
			Help:      "Plugins currently loaded",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hostkit",
			Subsystem: "plugin",
			Name:      "load_cycle_duration_seconds",
			Help:      "Duration of LoadPlugins calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.loaded, m.skipped, m.active, m.cycleDuration)
	}
	return m
}

func (m *Metrics) pluginLoaded() {
	if m == nil {
		return
	}
	m.loaded.Inc()
	m.active.Inc()
}

func (m *Metrics) pluginUnloaded() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) pluginSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) cycleDone(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}
