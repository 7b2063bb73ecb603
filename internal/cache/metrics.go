package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasquifx_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"collection"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasquifx_cache_misses_total",
			Help: "Total number of cache misses, including expired records",
		},
		[]string{"collection"},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasquifx_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"},
	)

	reconcilerRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasquifx_reconciler_removed_total",
			Help: "Total number of duplicate records removed by the reconciler",
		},
		[]string{"table"},
	)

	purgedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chasquifx_cache_purged_total",
			Help: "Total number of expired records deleted by the purger",
		},
		[]string{"table"},
	)
)
