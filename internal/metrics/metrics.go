package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service metrics for production monitoring
var (
	// Baseline metrics
	BaselinesCalculated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_baselines_calculated_total",
			Help: "Total number of baseline calculations",
		},
		[]string{"metric", "method", "status"},
	)

	BaselineCalculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwatch_baseline_calculation_duration_seconds",
			Help:    "Baseline calculation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"metric", "method"},
	)

	// Detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_anomalies_detected_total",
			Help: "Total number of anomalies emitted by the detector",
		},
		[]string{"metric", "severity"},
	)

	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_analyses_total",
			Help: "Total number of anomaly analyses",
		},
		[]string{"path", "status"}, // path: ai/rule_based
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwatch_analysis_duration_seconds",
			Help:    "Anomaly analysis duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"path"},
	)

	FallbackActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_fallback_activations_total",
			Help: "Total number of rule-based fallback activations",
		},
		[]string{"reason"}, // reason: timeout/completion_error/parse_error/low_confidence/disabled
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwatch_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "model"},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwatch_store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_store_errors_total",
			Help: "Total number of store operation failures",
		},
		[]string{"operation"},
	)

	// Feedback metrics
	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_feedback_recorded_total",
			Help: "Total number of analyst feedback submissions",
		},
		[]string{"verdict"}, // verdict: false_positive/confirmed
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftwatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"path", "method"},
	)
)
