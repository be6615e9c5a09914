// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts monitor cycles by terminal status.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hazardwatch",
		Name:      "cycles_total",
		Help:      "Monitor cycles by status (success, error, skipped).",
	}, []string{"status"})

	// DetectionsTotal counts persisted detections by hazard kind.
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hazardwatch",
		Name:      "detections_total",
		Help:      "Persisted hazard detections by kind.",
	}, []string{"kind"})

	// AlertsTotal counts alert dispatches by per-recipient outcome.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hazardwatch",
		Name:      "alerts_total",
		Help:      "Alert recipient outcomes (sent, failed, no_provider).",
	}, []string{"outcome"})

	// SourceErrorsTotal counts adapter fetch failures.
	SourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hazardwatch",
		Name:      "source_errors_total",
		Help:      "Upstream adapter fetch failures by adapter.",
	}, []string{"adapter"})

	// CycleDuration observes full-cycle wall time.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hazardwatch",
		Name:      "cycle_duration_seconds",
		Help:      "Monitor cycle duration.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)
