package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civitai_resolver_cache_hits_total",
		Help: "Total resolver cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civitai_resolver_cache_misses_total",
		Help: "Total resolver cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_resolver_cache_errors_total",
		Help: "Total cache operation errors",
	}, []string{"operation"})
)
