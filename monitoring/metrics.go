package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are kept in a registry owned by the monitor so that several
// monitors can live in one process.
type metrics struct {
	registry *prometheus.Registry

	now       prometheus.Gauge
	queued    prometheus.Gauge
	paused    prometheus.Gauge
	scheduled prometheus.Counter
	executed  prometheus.Counter
	discarded prometheus.Counter
	failed    prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		now: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "desim_clock",
			Help: "Current simulated time",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "desim_events_queued",
			Help: "Events stored in the queue, deactivated ones included",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "desim_paused",
			Help: "Pause state (0=running, 1=paused)",
		}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desim_events_scheduled_total",
			Help: "Events put into the queue",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desim_events_executed_total",
			Help: "Events whose action has run",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desim_events_discarded_total",
			Help: "Deactivated events dropped from the queue",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "desim_events_failed_total",
			Help: "Events whose action returned an error",
		}),
	}

	m.registry.MustRegister(
		m.now,
		m.queued,
		m.paused,
		m.scheduled,
		m.executed,
		m.discarded,
		m.failed,
	)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
