// Package metrics holds the Prometheus collectors of the availability service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slotreflow"

type Metrics struct {
	registry *prometheus.Registry

	ReflowRuns      prometheus.Counter
	SlotsEvaluated  prometheus.Counter
	SlotsRetained   prometheus.Counter
	SlotsAvailable  prometheus.Counter
	ReflowDuration  prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
	DegradedLookups *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReflowRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflow_runs_total",
			Help:      "Number of reflow computations.",
		}),
		SlotsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_evaluated_total",
			Help:      "Slots fed into reflow.",
		}),
		SlotsRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_retained_total",
			Help:      "Slots kept after reflow.",
		}),
		SlotsAvailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_available_total",
			Help:      "Retained slots that can take a new booking.",
		}),
		ReflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reflow_duration_seconds",
			Help:      "Time spent loading and reflowing one day.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Availability cache lookups by result.",
		}, []string{"result"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Booking events consumed by topic and outcome.",
		}, []string{"topic", "outcome"}),
		DegradedLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_lookups_total",
			Help:      "Storage lookups that failed and were replaced by an empty set.",
		}, []string{"source"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReflowRuns,
		m.SlotsEvaluated,
		m.SlotsRetained,
		m.SlotsAvailable,
		m.ReflowDuration,
		m.CacheLookups,
		m.EventsConsumed,
		m.DegradedLookups,
	)
	return m
}

// ObserveReflow records one computed day.
func (m *Metrics) ObserveReflow(evaluated, retained, available int, seconds float64) {
	m.ReflowRuns.Inc()
	m.SlotsEvaluated.Add(float64(evaluated))
	m.SlotsRetained.Add(float64(retained))
	m.SlotsAvailable.Add(float64(available))
	m.ReflowDuration.Observe(seconds)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
