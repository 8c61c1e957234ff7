package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research digest service,
// organized by subsystem: pipeline runs, the result cache, the bibliographic
// source, and LLM operations. All collectors are registered via promauto
// with the default registry.
type Metrics struct {
	// PipelineRunsStarted counts pipeline runs initiated, labeled by resource
	// ("research", "guidelines", "weekly_report").
	PipelineRunsStarted *prometheus.CounterVec

	// PipelineRunsCompleted counts pipeline runs that finished successfully,
	// labeled by resource.
	PipelineRunsCompleted *prometheus.CounterVec

	// PipelineRunsFailed counts pipeline runs that ended in failure, labeled
	// by resource.
	PipelineRunsFailed *prometheus.CounterVec

	// PipelineRunDuration observes end-to-end run duration in seconds,
	// labeled by resource.
	PipelineRunDuration *prometheus.HistogramVec

	// PapersPerRun observes the number of papers produced per run, labeled
	// by resource.
	PapersPerRun *prometheus.HistogramVec

	// EnrichmentFallbacks counts records that received default values because
	// enrichment was missing or failed.
	EnrichmentFallbacks prometheus.Counter

	// CacheHits counts cache reads served from a fresh entry, labeled by tier.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache reads with no entry, labeled by tier.
	CacheMisses *prometheus.CounterVec

	// CacheStale counts cache reads that found an expired entry, labeled by tier.
	CacheStale *prometheus.CounterVec

	// CacheRefreshes counts forced cache invalidations, labeled by tier.
	CacheRefreshes *prometheus.CounterVec

	// SourceRequestsTotal counts requests to the bibliographic index,
	// labeled by endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed requests to the bibliographic index,
	// labeled by endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes request duration to the bibliographic
	// index in seconds, labeled by endpoint.
	SourceRequestDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation,
	// model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds,
	// labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the default registry.
// Call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineRunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_pipeline_runs_started_total",
			Help: "Pipeline runs initiated.",
		}, []string{"resource"}),
		PipelineRunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_pipeline_runs_completed_total",
			Help: "Pipeline runs that finished successfully.",
		}, []string{"resource"}),
		PipelineRunsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_pipeline_runs_failed_total",
			Help: "Pipeline runs that ended in failure.",
		}, []string{"resource"}),
		PipelineRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digest_pipeline_run_duration_seconds",
			Help:    "End-to-end pipeline run duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"}),
		PapersPerRun: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digest_papers_per_run",
			Help:    "Papers produced per pipeline run.",
			Buckets: []float64{0, 1, 5, 10, 20, 30, 50},
		}, []string{"resource"}),
		EnrichmentFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "digest_enrichment_fallbacks_total",
			Help: "Records that received default values in place of enrichment.",
		}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_cache_hits_total",
			Help: "Cache reads served from a fresh entry.",
		}, []string{"tier"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_cache_misses_total",
			Help: "Cache reads that found no entry.",
		}, []string{"tier"}),
		CacheStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_cache_stale_total",
			Help: "Cache reads that found an expired entry.",
		}, []string{"tier"}),
		CacheRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_cache_refreshes_total",
			Help: "Forced cache invalidations.",
		}, []string{"tier"}),
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_source_requests_total",
			Help: "Requests to the bibliographic index.",
		}, []string{"endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_source_requests_failed_total",
			Help: "Failed requests to the bibliographic index.",
		}, []string{"endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digest_source_request_duration_seconds",
			Help:    "Request duration to the bibliographic index.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_llm_requests_total",
			Help: "LLM API requests.",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "digest_llm_requests_failed_total",
			Help: "Failed LLM API requests.",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digest_llm_request_duration_seconds",
			Help:    "LLM API request duration.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"operation", "model"}),
	}
}
