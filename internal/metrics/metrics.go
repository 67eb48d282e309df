// Package metrics instruments the bridge's poll loops and write operations
// with Prometheus counters, exposed on the local API server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peblar_bridge_refresh_total",
			Help: "Number of coordinator refreshes by result.",
		},
		[]string{"coordinator", "result"},
	)

	refreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peblar_bridge_refresh_duration_seconds",
			Help:    "Duration of coordinator refreshes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"coordinator"},
	)

	lastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peblar_bridge_last_refresh_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh per coordinator.",
		},
		[]string{"coordinator"},
	)

	writeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peblar_bridge_write_total",
			Help: "Number of entity write operations by result.",
		},
		[]string{"entity", "result"},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveRefresh records one coordinator refresh.
func ObserveRefresh(coordinator string, duration time.Duration, err error) {
	refreshTotal.WithLabelValues(coordinator, result(err)).Inc()
	refreshDuration.WithLabelValues(coordinator).Observe(duration.Seconds())
	if err == nil {
		lastSuccess.WithLabelValues(coordinator).SetToCurrentTime()
	}
}

// ObserveWrite records one entity write operation.
func ObserveWrite(entity string, err error) {
	writeTotal.WithLabelValues(entity, result(err)).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
