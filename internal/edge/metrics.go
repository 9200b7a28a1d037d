package edge

import "github.com/prometheus/client_golang/prometheus"

var (
	// edgeRequests counts intercepted requests by outcome
	// (hit|miss|passthrough|offline_page|network_error).
	edgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Total number of requests handled by the edge worker.",
		},
		[]string{"outcome"},
	)

	// edgeState exposes the lifecycle state as its numeric value.
	edgeState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edge_worker_state",
			Help: "Current edge worker lifecycle state (0=parsed .. 4=activated, 5=redundant).",
		},
	)

	// edgeInstalls counts install attempts by result.
	edgeInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_installs_total",
			Help: "Total number of shell install attempts.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(edgeRequests, edgeState, edgeInstalls)
}
