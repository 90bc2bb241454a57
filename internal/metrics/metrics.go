package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Processed message count, by outcome.
	EmailProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_processed_count",
			Help: "Total number of inbox messages processed",
		},
		[]string{"status"}, // status: success, skipped
	)

	// Archive failures are best-effort and non-fatal, but worth watching.
	ArchiveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_archive_failures_total",
			Help: "Total number of failed provider archive calls",
		},
	)

	// Classifier calls that fell back to the default category.
	ClassifierFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_fallback_total",
			Help: "Total number of classification calls that fell back to the default result",
		},
		[]string{"reason"}, // reason: request, status, parse
	)

	// Classifier call latency (milliseconds).
	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "Classifier service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"mode", "status"},
	)

	// Store write latency (seconds).
	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_write_duration_seconds",
			Help:    "Flat-file store write duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"store"}, // store: records, categories
	)
)

// RecordClassifierCall records one classifier round trip.
func RecordClassifierCall(mode, status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(mode, status).Observe(float64(duration.Milliseconds()))
}

// RecordStoreWrite records one store file rewrite.
func RecordStoreWrite(store string, duration time.Duration) {
	StoreWriteDuration.WithLabelValues(store).Observe(duration.Seconds())
}
