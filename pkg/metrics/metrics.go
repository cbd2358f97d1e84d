// Package metrics exposes prometheus instruments for the agent's LLM calls
// and SQL dispatch. Purely observational; nothing here affects control flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"provider", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fathom_llm_request_duration_seconds",
			Help:    "Duration of LLM completion requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_llm_tokens_total",
			Help: "Total LLM tokens consumed",
		},
		[]string{"provider", "direction"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_sql_queries_total",
			Help: "Total number of SQL dispatches through the query router",
		},
		[]string{"backend", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fathom_sql_query_duration_seconds",
			Help:    "Duration of SQL dispatches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fathom_recovery_retries_total",
			Help: "Total retry attempts made by the generation/recovery loop",
		},
		[]string{"phase"},
	)
)

// RecordLLMRequest records one LLM completion attempt.
func RecordLLMRequest(provider string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage reported by a provider.
func RecordLLMTokens(provider string, input, output int64) {
	LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(output))
}

// RecordQuery records one SQL dispatch against a backend.
func RecordQuery(backend string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	QueriesTotal.WithLabelValues(backend, status).Inc()
	QueryDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordRetry records one recovery attempt for a phase ("generation" or
// "execution").
func RecordRetry(phase string) {
	RetriesTotal.WithLabelValues(phase).Inc()
}
