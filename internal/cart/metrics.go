package cart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cart",
			Name:      "events_total",
			Help:      "Cart events appended by type.",
		},
		[]string{"type"},
	)

	rebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cart",
		Name:      "rebuilds_total",
		Help:      "Cart views rebuilt from the event log.",
	})

	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cart",
			Name:      "cache_requests_total",
			Help:      "Cart cache lookups by result.",
		},
		[]string{"result"}, // hit, miss, error
	)
)
