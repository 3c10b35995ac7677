// Package metrics exposes Prometheus collectors for collection, caching and
// indicator computation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequestsTotal tracks outbound API requests by source and status
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watertracker_fetch_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"source", "status"},
	)

	// FetchPagesTotal tracks paginated responses consumed per source
	FetchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watertracker_fetch_pages_total",
			Help: "Total number of result pages fetched from upstream APIs",
		},
		[]string{"source"},
	)

	// CacheRowsAppended tracks measurements appended to the CSV cache
	CacheRowsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watertracker_cache_rows_appended_total",
			Help: "Total number of rows appended to the on-disk CSV cache",
		},
		[]string{"kind"},
	)

	// IndicatorComputations tracks standardized indicator runs per kind
	IndicatorComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watertracker_indicator_computations_total",
			Help: "Total number of standardized indicator computations",
		},
		[]string{"indicator", "status"},
	)

	// IndicatorDuration tracks how long a full recomputation takes
	IndicatorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watertracker_indicator_duration_seconds",
			Help:    "Duration of full indicator recomputations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// HTTPRequestsTotal tracks dashboard requests by route and code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watertracker_http_requests_total",
			Help: "Total number of dashboard HTTP requests",
		},
		[]string{"route", "code"},
	)

	// StationsTracked reports how many stations are present in the inventory
	StationsTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watertracker_stations_tracked",
			Help: "Number of stations present in the local inventory",
		},
		[]string{"kind"},
	)
)
