package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_units_total",
		Help: "Processed download units by kind and outcome",
	}, []string{"kind", "outcome"})

	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civitai_cleanup_deleted_total",
		Help: "Local files deleted by date-bounded cleanup",
	})
)
