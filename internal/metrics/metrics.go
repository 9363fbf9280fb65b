package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthdash_imports_total",
			Help: "Total export imports by outcome",
		},
		[]string{"status"},
	)

	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthdash_import_rows_total",
			Help: "Rows written by imports, per table",
		},
		[]string{"table"},
	)

	ImportSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthdash_import_skipped_total",
			Help: "Rows dropped during import, by reason",
		},
		[]string{"reason"},
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthdash_import_duration_seconds",
			Help:    "Wall time of a complete import",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthdash_query_duration_seconds",
			Help:    "Latency of dashboard data queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthdash_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthdash_source_fetches_total",
			Help: "Remote export downloads by scheme and outcome",
		},
		[]string{"scheme", "status"},
	)
)
