package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// storeOps counts store operations by name and outcome
	// (ok|unavailable|write_failed|read_failed|invalid).
	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of record store operations.",
		},
		[]string{"op", "result"},
	)

	// queueDepth is the number of queued actions seen by the last listing.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_queued_actions",
			Help: "Number of queued actions at the last listing.",
		},
	)
)

func init() {
	prometheus.MustRegister(storeOps, queueDepth)
}

func observe(op string, err error) {
	storeOps.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStorageUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidRecord):
		return "invalid"
	case errors.Is(err, ErrStorageWriteFailed):
		return "write_failed"
	case errors.Is(err, ErrStorageReadFailed):
		return "read_failed"
	default:
		return "error"
	}
}
