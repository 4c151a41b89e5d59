package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is where metrics are served when enabled. The "/-/" prefix
// keeps it out of the way of ordinary document-root paths.
const MetricsPath = "/-/metrics"

// Metrics holds the request metrics of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	slowRequests *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a private registry, together with the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devserve",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests handled, by method and status code",
		}, []string{"method", "code"}),
		slowRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devserve",
			Subsystem: "http",
			Name:      "slow_requests_total",
			Help:      "Requests at or above the slow-request threshold",
		}, []string{"method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devserve",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent in the file handler",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.slowRequests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one completed request.
func (m *Metrics) Observe(method string, status int, elapsed time.Duration, slow bool) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
	if slow {
		m.slowRequests.WithLabelValues(method).Inc()
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
