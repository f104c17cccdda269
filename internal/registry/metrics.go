package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vocald",
			Subsystem: "registry",
			Name:      "downloads_total",
			Help:      "Completed download transfers by result",
		},
		[]string{"result"},
	)

	deletesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vocald",
			Subsystem: "registry",
			Name:      "deletes_total",
			Help:      "Model artifacts deleted",
		},
	)
)

func init() {
	prometheus.MustRegister(downloadsTotal, deletesTotal)
}
