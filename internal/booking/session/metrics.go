package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	routeResolveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_resolve_seconds",
		Help:    "Time spent resolving route metrics for a session.",
		Buckets: prometheus.DefBuckets,
	})

	quoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_fetches_total",
		Help: "Fare and driver fetches grouped by kind and result.",
	}, []string{"kind", "result"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_total",
		Help: "Pickup dispatch attempts grouped by outcome.",
	}, []string{"result"})
)
