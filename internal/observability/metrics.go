package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects routing metrics.
type Metrics struct {
	TasksTotal       *prometheus.CounterVec
	FallbackAttempts prometheus.Counter
	TokensConsumed   *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
}

// NewMetrics registers routing collectors on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_tasks_total",
				Help: "Task executions by model and terminal status",
			},
			[]string{"model", "status"},
		),
		FallbackAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "router_fallback_attempts_total",
				Help: "Execution attempts made against fallback candidates",
			},
		),
		TokensConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_tokens_consumed_total",
				Help: "Tokens consumed by model",
			},
			[]string{"model"},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_provider_latency_seconds",
				Help:    "Upstream provider call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}
