// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhookEventsTotal tracks inbound provider events by classification.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound provider events by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// BatchesProcessedTotal tracks drained debounce batches.
	BatchesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_batches_total",
			Help: "Debounce batches drained and handed to the reasoning loop",
		},
		[]string{"tenant_id"},
	)

	// BatchSize tracks the number of messages per drained batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregation_batch_size",
			Help:    "Messages per drained debounce batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	// LoopTurnsTotal tracks reasoning turns executed.
	LoopTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_turns_total",
			Help: "Reasoning loop turns executed",
		},
		[]string{"tenant_id"},
	)

	// LoopOutcomesTotal tracks how reasoning loops terminated.
	LoopOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_loops_total",
			Help: "Reasoning loops by terminal condition",
		},
		[]string{"tenant_id", "outcome"},
	)

	// GenerationDuration tracks generation-service call duration.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Generation service call duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model", "status"},
	)

	// GenerationFallbacksTotal tracks fallbacks to a secondary model.
	GenerationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_fallbacks_total",
			Help: "Times a candidate model failed over to the next one",
		},
		[]string{"from_model", "to_model"},
	)

	// GenerationTokensTotal tracks tokens processed by the generation service.
	GenerationTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_tokens_total",
			Help: "Generation service tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ToolExecutionsTotal tracks tool dispatcher executions.
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Tool executions by name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// ChunksSentTotal tracks delivery pipeline chunk sends.
	ChunksSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_chunks_total",
			Help: "Delivery pipeline chunk sends by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// FollowUpsTotal tracks follow-up scheduler actions.
	FollowUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followups_total",
			Help: "Follow-up sweep actions",
		},
		[]string{"tenant_id", "action"},
	)

	// EscalationsTotal tracks conversations moved to human support.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Conversations escalated to the support folder",
		},
		[]string{"tenant_id", "reason"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records metrics for one generation-service call.
func RecordGeneration(model, status string, duration float64, tokensIn, tokensOut int) {
	GenerationDuration.WithLabelValues(model, status).Observe(duration)
	GenerationTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	GenerationTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
