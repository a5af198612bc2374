package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for download operations.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_downloads_total",
		Help: "Total download outcomes by result",
	}, []string{"result"})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civitai_download_bytes_total",
		Help: "Total bytes written to local storage",
	})

	downloadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_download_attempts_total",
		Help: "Total download attempt outcomes by cause",
	}, []string{"cause"})

	reconcileActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civitai_reconcile_actions_total",
		Help: "Stale same-identity files renamed into place or deleted",
	}, []string{"action"})

	inflightDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "civitai_inflight_downloads",
		Help: "Downloads currently in flight",
	})
)
