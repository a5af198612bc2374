package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for self-imposed pacing.
var (
	throttleWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civitai_throttle_waits_total",
		Help: "Total number of self-imposed throttle delays",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "civitai_throttle_wait_seconds",
		Help:    "Duration of self-imposed throttle delays",
		Buckets: []float64{0.1, 0.2, 0.3, 0.5, 1, 1.5},
	})

	backoffWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_backoff_waits_total",
		Help: "Total number of backoff sleeps by cause",
	}, []string{"cause"})

	backoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civitai_backoff_seconds",
		Help:    "Backoff sleep duration by cause",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 100},
	}, []string{"cause"})
)
