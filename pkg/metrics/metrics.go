// Package metrics defines the Prometheus collectors used across the
// platform and exposes an HTTP handler for scraping. Collectors are
// package-level and registered once at init, so any layer can record
// without plumbing a registry through constructors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openfts_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openfts_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openfts_http_requests_in_flight",
			Help: "HTTP requests currently being processed.",
		},
	)

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openfts_searches_total",
			Help: "Search requests by outcome (ok, zero_results, index_empty, error).",
		},
		[]string{"outcome"},
	)
	SearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openfts_search_latency_seconds",
			Help:    "Search latency in seconds by cache status.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"cache_status"},
	)
	SearchResultCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openfts_search_result_count",
			Help:    "Results returned per search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_cache_hits_total",
			Help: "Query cache hits.",
		},
	)
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_cache_misses_total",
			Help: "Query cache misses.",
		},
	)

	DocumentsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_documents_indexed_total",
			Help: "Index operations committed, including re-indexes.",
		},
	)
	DocumentsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_documents_removed_total",
			Help: "Document removals applied to the index.",
		},
	)
	DocumentsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_documents_rejected_total",
			Help: "Documents rejected as invalid during indexing.",
		},
	)

	CheckpointsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_checkpoints_written_total",
			Help: "Index checkpoints written.",
		},
	)
	CheckpointsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openfts_checkpoints_failed_total",
			Help: "Index checkpoint attempts that failed.",
		},
	)
	CheckpointDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openfts_checkpoint_duration_seconds",
			Help:    "Time spent writing one checkpoint.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openfts_kafka_messages_consumed_total",
			Help: "Kafka messages consumed by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openfts_kafka_messages_published_total",
			Help: "Kafka messages published by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	ShardDocuments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openfts_shard_documents",
			Help: "Documents currently held per shard.",
		},
		[]string{"shard_id"},
	)
)

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
