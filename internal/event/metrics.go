package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for a Bus.
// A nil *Metrics records nothing.
type Metrics struct {
	fireDuration   *prometheus.HistogramVec
	slowFires      *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
}

// NewMetrics creates bus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hostkit",
				Subsystem: "event",
				Name:      "fire_duration_seconds",
				Help:      "Duration of Fire calls that reached at least one handler",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"event"},
		),
		slowFires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hostkit",
				Subsystem: "event",
				Name:      "slow_fires_total",
				Help:      "Fire calls that exceeded the slow fire threshold",
			},
			[]string{"event"},
		),
		dispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hostkit",
				Subsystem: "event",
				Name:      "dispatch_errors_total",
				Help:      "Fire calls aborted by a failing handler",
			},
			[]string{"event"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.fireDuration, m.slowFires, m.dispatchErrors)
	}
	return m
}

func (m *Metrics) observeFire(event string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fireDuration.WithLabelValues(event).Observe(d.Seconds())
	if err != nil {
		m.dispatchErrors.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) slowFire(event string) {
	if m == nil {
		return
	}
	m.slowFires.WithLabelValues(event).Inc()
}
