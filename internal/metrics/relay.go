// Package metrics exposes the Prometheus collectors for the relay process.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "status"})

	// RequestDuration tracks end-to-end request handling time. Streaming
	// requests dominate the upper buckets.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "comoe_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.ExponentialBuckets(0.005, 2.0, 14), // 5ms to ~40s
	}, []string{"route"})

	// RelayStageTotal counts state machine transitions by entered stage.
	RelayStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_relay_stage_total",
		Help: "Total relay state machine transitions by entered stage",
	}, []string{"stage"})

	// RelayErrorsTotal counts relay failures by taxonomy kind.
	RelayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comoe_relay_errors_total",
		Help: "Total relay failures by error kind",
	}, []string{"kind"})

	// ActiveStreams gauges concurrently running relay requests.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "comoe_relay_active_streams",
		Help: "Number of relay requests currently streaming",
	})

	// BytesIn counts source bytes fed into the engine.
	BytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comoe_relay_bytes_in_total",
		Help: "Total source bytes fed into the engine",
	})

	// BytesOut counts transcoded bytes forwarded to clients.
	BytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comoe_relay_bytes_out_total",
		Help: "Total transcoded bytes forwarded to clients",
	})

	// ProbeDuration tracks the metadata probe round trip.
	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comoe_probe_duration_seconds",
		Help:    "Source metadata probe duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
	})

	// ClientDisconnects counts requests aborted by the client mid-relay.
	ClientDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comoe_relay_client_disconnects_total",
		Help: "Total requests aborted by client disconnect",
	})
)

// IncRequest records a handled request.
func IncRequest(route string, status int) {
	RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveRequestDuration records total handling time for a route.
func ObserveRequestDuration(route string, d time.Duration) {
	RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// IncRelayStage records entry into a state machine stage.
func IncRelayStage(stage string) {
	RelayStageTotal.WithLabelValues(stage).Inc()
}

// IncRelayError records a relay failure by taxonomy kind.
func IncRelayError(kind string) {
	RelayErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveProbeDuration records a probe round trip.
func ObserveProbeDuration(d time.Duration) {
	ProbeDuration.Observe(d.Seconds())
}

// IncClientDisconnect records a client-initiated abort.
func IncClientDisconnect() {
	ClientDisconnects.Inc()
}
