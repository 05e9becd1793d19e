package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for coordinator operations.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_pages_fetched_total",
		Help: "Total page fetches by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pager_page_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds (fetch plus parse)",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	refreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_refreshes_total",
		Help: "Total coordinator refreshes",
	})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_retries_total",
		Help: "Total caller-initiated retries",
	})

	staleDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_stale_results_discarded_total",
		Help: "Total late results discarded after a superseding refresh",
	})
)
