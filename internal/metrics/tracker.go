package metrics

import "github.com/prometheus/client_golang/prometheus"

// Issue tracker Prometheus metrics.
var TrackerRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "semdex",
		Name:      "tracker_requests_total",
		Help:      "Total number of issue tracker create requests",
	},
	[]string{"status"},
)

var trackerMetricsRegistered bool

// RegisterTrackerMetrics registers Prometheus tracker metrics. Must be called once from main.
func RegisterTrackerMetrics() {
	if trackerMetricsRegistered {
		return
	}
	prometheus.MustRegister(TrackerRequestsTotal)
	trackerMetricsRegistered = true
}
