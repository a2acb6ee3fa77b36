package rollout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_migration_executions_total",
		Help: "Total AI operations executed through the migration controller.",
	}, []string{"kind", "operation", "version", "status"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_migration_execution_duration_seconds",
		Help:    "Duration of AI operations including fallback.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind", "operation", "version"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_migration_fallbacks_total",
		Help: "Next-gen failures served by the legacy backend.",
	}, []string{"kind", "operation"})

	rolloutPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ai_migration_rollout_percentage",
		Help: "Current rollout percentage per operation family.",
	}, []string{"kind"})
)
