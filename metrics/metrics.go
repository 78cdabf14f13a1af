// Package metrics provides Prometheus instrumentation for the dubbing
// workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "songdub"

// Request statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// gatewayRequestDuration is a histogram of AI service call duration.
	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of AI service calls in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// gatewayRequestsTotal is a counter of AI service calls.
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Total number of AI service calls",
		},
		[]string{"operation", "status"},
	)

	// sessionsActive is a gauge of sessions currently holding data.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently holding uploaded media",
		},
	)

	// synthesizedBytesTotal counts bytes of dubbed audio produced.
	synthesizedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_audio_bytes_total",
			Help:      "Total bytes of dubbed audio produced",
		},
	)
)

func init() {
	prometheus.MustRegister(
		gatewayRequestDuration,
		gatewayRequestsTotal,
		sessionsActive,
		synthesizedBytesTotal,
	)
}

// ObserveGatewayRequest records one AI service call.
func ObserveGatewayRequest(operation, status string, duration time.Duration) {
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	gatewayRequestsTotal.WithLabelValues(operation, status).Inc()
}

// SetSessionActive records whether the session currently holds media.
func SetSessionActive(active bool) {
	if active {
		sessionsActive.Set(1)
		return
	}
	sessionsActive.Set(0)
}

// AddSynthesizedBytes records produced dubbed audio.
func AddSynthesizedBytes(n int) {
	synthesizedBytesTotal.Add(float64(n))
}
