package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	constructionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vocald",
			Subsystem: "cache",
			Name:      "constructions_total",
			Help:      "Adapter constructions by result",
		},
		[]string{"result"},
	)

	evictionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vocald",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Adapter evictions by reason",
		},
		[]string{"reason"},
	)

	warmAdapters = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vocald",
			Subsystem: "cache",
			Name:      "warm_adapters",
			Help:      "Adapters currently held in memory",
		},
	)
)

func init() {
	prometheus.MustRegister(constructionsTotal, evictionsCounter, warmAdapters)
}
