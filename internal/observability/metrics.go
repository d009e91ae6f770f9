package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no mux pattern claimed, so probing for
// random paths cannot grow the series count.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textsql_http_requests_total",
			Help: "API requests by method, mux pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	// Execute and chat routes wait on the model, so the buckets run past
	// the default 10s ceiling.
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textsql_http_request_duration_seconds",
			Help:    "API request latency by route, including model round trips.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route", "status"},
	)

	httpResponseSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textsql_http_response_size_bytes",
			Help:    "Response body size by route; result sets dominate the upper buckets.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "textsql_http_requests_in_flight",
			Help: "API requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpResponseSizeBytes, httpRequestsInFlight)
}

func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	return pattern
}

func observeHTTPRequest(method, pattern string, status, size int, elapsed time.Duration) {
	route := routeLabel(pattern)
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	httpResponseSizeBytes.WithLabelValues(route).Observe(float64(size))
}
