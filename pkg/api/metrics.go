package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_requests_total",
		Help: "Total API requests by procedure and status",
	}, []string{"procedure", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civitai_request_duration_seconds",
		Help:    "API request duration in seconds by procedure",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"procedure"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_pages_fetched_total",
		Help: "Total metadata pages fetched by procedure",
	}, []string{"procedure"})

	itemsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_items_fetched_total",
		Help: "Total items accepted from metadata pages by procedure",
	}, []string{"procedure"})
)
