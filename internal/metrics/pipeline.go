package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "triage"

// Pipeline Prometheus metrics: oracles, ingestion, clustering, index, dedup.
var (
	OracleCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by oracle and status",
		},
		[]string{"oracle", "status"}, // ok / error / timeout / fallback / budget / rate_limited
	)

	OracleCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Oracle call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"oracle"},
	)

	OracleBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "oracle_budget_tokens_remaining",
			Help:      "Remaining oracle token budget",
		},
		[]string{"provider", "period"},
	)

	OracleTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_tokens_total",
			Help:      "LLM tokens consumed by provider, model and kind",
		},
		[]string{"provider", "model", "kind"}, // input / output
	)

	IngestEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Ingested events by outcome",
		},
		[]string{"outcome"}, // stored / duplicate / irrelevant / error
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ClusteringDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clustering_decisions_total",
			Help:      "Clustering decisions by path",
		},
		[]string{"path"},
	)

	ClusteringScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clustering_decision_score",
			Help:      "Combined score of the best candidate at the threshold gate",
			Buckets:   prometheus.LinearBuckets(-0.1, 0.1, 14),
		},
	)

	IndexSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vector_index_entries",
			Help:      "Number of entries in the vector index",
		},
		[]string{"backend"},
	)

	IndexRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_index_rejected_total",
			Help:      "Vector index upserts rejected for malformed vectors",
		},
		[]string{"backend"},
	)

	DedupEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_evictions_total",
			Help:      "Deduplication cache evictions",
		},
	)

	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_queue_depth",
			Help:      "Events waiting in the async ingest queue",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		OracleCallsTotal,
		OracleCallDuration,
		OracleBudgetTokensRemaining,
		OracleTokensTotal,
		IngestEventsTotal,
		IngestDuration,
		ClusteringDecisionsTotal,
		ClusteringScore,
		IndexSize,
		IndexRejectedTotal,
		DedupEvictionsTotal,
		IngestQueueDepth,
	)
	pipelineMetricsRegistered = true
}
