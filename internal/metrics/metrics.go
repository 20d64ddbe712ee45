package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SearchRequests counts search calls by outcome ("ok" or "error").
	SearchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beatmapdex_search_requests_total",
			Help: "Total number of beatmap search requests",
		},
		[]string{"outcome"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beatmapdex_search_duration_seconds",
			Help:    "Time taken to answer a beatmap search",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SearchParamsRejected counts query parameters that were ignored
	// because they could not be parsed.
	SearchParamsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beatmapdex_search_params_rejected_total",
			Help: "Search parameters skipped because they were malformed",
		},
		[]string{"param"},
	)

	ImportRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beatmapdex_import_runs_total",
			Help: "Total number of import runs by outcome",
		},
		[]string{"outcome"},
	)

	ImportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beatmapdex_import_duration_seconds",
			Help:    "Time taken by a full import run",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// ImportedRows counts upserted rows by kind ("beatmapset" or "beatmap").
	ImportedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beatmapdex_imported_rows_total",
			Help: "Rows upserted by the importer",
		},
		[]string{"kind"},
	)

	ImportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beatmapdex_import_failures_total",
			Help: "Beatmapsets that failed to store during import",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SearchRequests,
		SearchDuration,
		SearchParamsRejected,
		ImportRuns,
		ImportDuration,
		ImportedRows,
		ImportFailures,
	)
}
