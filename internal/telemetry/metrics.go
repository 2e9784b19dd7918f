package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ingestord",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PoolAvailableCollections tracks the current count of AVAILABLE vector
// collections in the warm pool (invariant: should stay >= MIN_POOL_SIZE).
var PoolAvailableCollections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "ingestord",
		Subsystem: "pool",
		Name:      "available_collections",
		Help:      "Current number of AVAILABLE vector collections in the warm pool.",
	},
)

// PoolProvisionedTotal counts provisionOne outcomes by result.
var PoolProvisionedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "pool",
		Name:      "provisioned_total",
		Help:      "Total number of collection provisioning attempts by outcome.",
	},
	[]string{"result"},
)

// PoolDroppedTotal counts cleanup drops by reason.
var PoolDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "pool",
		Name:      "dropped_total",
		Help:      "Total number of vector collections dropped by the cleanup pass, by reason.",
	},
	[]string{"reason"},
)

// IngestionMessagesProcessedTotal counts processed queue messages by outcome.
var IngestionMessagesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "worker",
		Name:      "messages_processed_total",
		Help:      "Total number of ingestion queue messages processed, by outcome.",
	},
	[]string{"outcome"},
)

// IngestionFilesProcessedTotal counts per-file index/delete outcomes.
var IngestionFilesProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "worker",
		Name:      "files_processed_total",
		Help:      "Total number of per-file index/delete operations, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

// IngestionProcessingDuration tracks per-message processing latency.
var IngestionProcessingDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "ingestord",
		Subsystem: "worker",
		Name:      "message_processing_duration_seconds",
		Help:      "Time to fully process one ingestion queue message.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	},
)

// ReaperDocumentsReconciledTotal counts documents reconciled by the Reaper.
var ReaperDocumentsReconciledTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "reaper",
		Name:      "documents_reconciled_total",
		Help:      "Total number of conflicted documents reconciled by the Reaper, by resolution.",
	},
	[]string{"resolution"},
)

// ReaperJobsFailedTotal counts stuck jobs aged out by the Reaper.
var ReaperJobsFailedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "ingestord",
		Subsystem: "reaper",
		Name:      "jobs_failed_total",
		Help:      "Total number of stuck ingestion jobs failed by the Reaper.",
	},
)

// All returns all ingestord-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		PoolAvailableCollections,
		PoolProvisionedTotal,
		PoolDroppedTotal,
		IngestionMessagesProcessedTotal,
		IngestionFilesProcessedTotal,
		IngestionProcessingDuration,
		ReaperDocumentsReconciledTotal,
		ReaperJobsFailedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
