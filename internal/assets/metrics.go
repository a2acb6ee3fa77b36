package assets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_asset_tasks_processed_total",
			Help: "Total number of asset tasks processed by the worker.",
		},
		[]string{"kind", "status"}, // "completed", "failed", "skipped", "error_unmarshal", "error_db"
	)
	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storybook_asset_task_duration_seconds",
		Help:    "Duration of asset task processing.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"kind"})
	tasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_asset_tasks_dispatched_total",
			Help: "Asset tasks published to the queue.",
		},
		[]string{"kind", "status"},
	)
	ttsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_tts_cache_lookups_total",
			Help: "TTS cache lookups by result.",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)
