package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizscout_fetch_tasks_total",
		Help: "Fetch tasks by outcome (success or error kind)",
	}, []string{"outcome"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizscout_fetch_task_duration_seconds",
		Help:    "End-to-end fetch task duration",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90},
	}, []string{"outcome"})

	taskRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bizscout_fetch_task_retries_total",
		Help: "Fetch task attempts repeated after a retryable failure",
	})

	limiterInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bizscout_limiter_in_flight",
		Help: "Fetch tasks currently holding a limiter permit",
	})

	poolContexts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bizscout_pool_contexts",
		Help: "Execution contexts currently open in the resource pool",
	})

	poolRecyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bizscout_pool_context_recycles_total",
		Help: "Execution contexts replaced after crossing the health threshold",
	})

	detectorExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizscout_detector_exits_total",
		Help: "Completion detector exits by reason",
	}, []string{"reason"})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bizscout_batches_total",
		Help: "Batches executed by the orchestrator",
	})
)
