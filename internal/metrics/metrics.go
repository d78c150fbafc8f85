// Package metrics holds the pipeline counters on a dedicated registry.
// Exposition is up to the embedding surface; the daemon itself only
// increments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects pipeline counters.
type Metrics struct {
	registry *prometheus.Registry

	CyclesRun         prometheus.Counter
	IntentsEmitted    *prometheus.CounterVec
	DedupSuppressions *prometheus.CounterVec
	ReviewRejections  prometheus.Counter
	DeliveryErrors    prometheus.Counter
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intentd",
			Name:      "cycles_run_total",
			Help:      "Pipeline passes started, by poll tick or hotkey.",
		}),
		IntentsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intentd",
			Name:      "intents_emitted_total",
			Help:      "Intents that reached delivery, by dimension.",
		}, []string{"dimension"}),
		DedupSuppressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intentd",
			Name:      "dedup_suppressions_total",
			Help:      "Intents suppressed as near-duplicates, by track.",
		}, []string{"track"}),
		ReviewRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intentd",
			Name:      "review_rejections_total",
			Help:      "Intents rejected by the cloud review gate.",
		}),
		DeliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intentd",
			Name:      "delivery_errors_total",
			Help:      "Failed notification channel deliveries.",
		}),
	}

	m.registry.MustRegister(
		m.CyclesRun,
		m.IntentsEmitted,
		m.DedupSuppressions,
		m.ReviewRejections,
		m.DeliveryErrors,
	)
	return m
}

// Registry exposes the underlying registry for scraping surfaces.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
