package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "feedback",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// IngestedTotal counts accepted feedback rows by ingest path and outcome.
var IngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "ingest",
		Name:      "rows_total",
		Help:      "Total number of feedback rows processed by ingest, by path and outcome.",
	},
	[]string{"path", "outcome"},
)

// EnrichmentStageDuration tracks per-stage enrichment processing time.
var EnrichmentStageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "feedback",
		Subsystem: "enrich",
		Name:      "stage_duration_seconds",
		Help:      "Enrichment stage processing duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"stage"},
)

// EnrichmentJobsTotal counts enrichment jobs by stage and terminal outcome.
var EnrichmentJobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "enrich",
		Name:      "jobs_total",
		Help:      "Total number of enrichment jobs processed, by stage and outcome.",
	},
	[]string{"stage", "outcome"},
)

// DeadLetteredTotal counts jobs moved to a queue's dead-letter list.
var DeadLetteredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "queue",
		Name:      "dead_lettered_total",
		Help:      "Total number of jobs moved to the dead-letter queue, by queue name.",
	},
	[]string{"queue"},
)

// CacheResultsTotal counts analytics cache hits/misses by endpoint.
var CacheResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "analytics",
		Name:      "cache_results_total",
		Help:      "Total number of analytics cache lookups, by endpoint and result.",
	},
	[]string{"endpoint", "result"},
)

// ExportRowsTotal counts rows streamed by the export engine.
var ExportRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "export",
		Name:      "rows_total",
		Help:      "Total number of rows streamed by export, by variant.",
	},
	[]string{"variant"},
)

// QACitationViolationsTotal counts answers rejected for missing citations.
var QACitationViolationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "feedback",
		Subsystem: "qa",
		Name:      "citation_violations_total",
		Help:      "Total number of QA answers rejected for violating the citation invariant.",
	},
)

// All returns the feedback-service-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		IngestedTotal,
		EnrichmentStageDuration,
		EnrichmentJobsTotal,
		DeadLetteredTotal,
		CacheResultsTotal,
		ExportRowsTotal,
		QACitationViolationsTotal,
	}
}
