package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mator",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"method", "route"})

	ActiveTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mator",
		Name:      "active_transfers",
		Help:      "Number of download requests currently holding an engine session.",
	})

	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mator",
		Name:      "downloads_total",
		Help:      "Total download requests by outcome and failure kind.",
	}, []string{"outcome", "kind"})

	DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mator",
		Name:      "download_duration_seconds",
		Help:      "Wall time from request submission to terminal outcome.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ArtifactSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mator",
		Name:      "artifact_size_bytes",
		Help:      "Size of successfully resolved download artifacts.",
		Buckets:   []float64{1 << 20, 16 << 20, 64 << 20, 128 << 20, 256 << 20, 512 << 20},
	})

	SweptArtifactsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mator",
		Name:      "swept_artifacts_total",
		Help:      "Total stale artifacts removed by the retention sweeper.",
	})

	ArchiveFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mator",
		Name:      "archive_failures_total",
		Help:      "Total failed attempts to archive an artifact to object storage.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mator",
		Name:      "rate_limited_requests_total",
		Help:      "Total HTTP requests rejected by the rate limiter.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveTransfers,
		DownloadsTotal,
		DownloadDuration,
		ArtifactSizeBytes,
		SweptArtifactsTotal,
		ArchiveFailuresTotal,
		RateLimitedTotal,
	)
}
