// Package metrics exposes Prometheus instrumentation for the identification
// and training pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IdentifyRequests counts identification requests by outcome:
	// ok, empty, password_required, password_incorrect, error.
	IdentifyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layoutid_identify_requests_total",
		Help: "Identification requests by outcome.",
	}, []string{"outcome"})

	IdentifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "layoutid_identify_duration_seconds",
		Help:    "End-to-end identification latency (extraction + scoring).",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// TrainingRuns counts completed training runs by status: success, failed, rejected.
	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layoutid_training_runs_total",
		Help: "Training runs by final status.",
	}, []string{"status"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "layoutid_training_duration_seconds",
		Help:    "Duration of model training runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// OCRTimeouts counts page images whose OCR was abandoned after the
	// per-image deadline. These are swallowed by extraction, so the counter
	// is the only place they stay visible.
	OCRTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layoutid_ocr_timeouts_total",
		Help: "Per-image OCR timeouts swallowed during extraction.",
	})

	ModelReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layoutid_model_reloads_total",
		Help: "Model reloads by result.",
	}, []string{"result"})

	CatalogLayouts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "layoutid_catalog_layouts",
		Help: "Number of layouts in the loaded catalog.",
	})
)
