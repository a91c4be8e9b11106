package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	forwardsTotal   *prometheus.CounterVec
	rotationsTotal  *prometheus.CounterVec
	rotationDenials *prometheus.CounterVec
	poolSize        prometheus.Gauge
	identities      prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "proxygw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "endpoint", "status"},
	)

	m.forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Forwarding attempts by upstream and outcome",
		},
		[]string{"upstream", "outcome"},
	)

	m.rotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "Rotation attempts by result",
		},
		[]string{"result"},
	)

	m.rotationDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_denials_total",
			Help:      "Rotation denials by reason",
		},
		[]string{"reason"},
	)

	m.poolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Current number of upstream proxies in the pool",
		},
	)

	m.identities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_identities",
			Help:      "Number of identities with live rotation state",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.forwardsTotal,
		m.rotationsTotal,
		m.rotationDenials,
		m.poolSize,
		m.identities,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records one handled HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, endpoint, s).Inc()
	m.requestDuration.WithLabelValues(method, endpoint, s).Observe(duration.Seconds())
}

// RecordForward records one forwarding attempt.
func (m *Metrics) RecordForward(upstream string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.forwardsTotal.WithLabelValues(upstream, outcome).Inc()
}

// RecordRotation records a successful rotation.
func (m *Metrics) RecordRotation() {
	m.rotationsTotal.WithLabelValues("success").Inc()
}

// RecordRotationDenial records a denied rotation.
func (m *Metrics) RecordRotationDenial(reason string) {
	m.rotationsTotal.WithLabelValues("denied").Inc()
	m.rotationDenials.WithLabelValues(reason).Inc()
}

// SetPoolSize sets the current pool size gauge.
func (m *Metrics) SetPoolSize(n int) {
	m.poolSize.Set(float64(n))
}

// SetTrackedIdentities sets the tracked identity gauge.
func (m *Metrics) SetTrackedIdentities(n int) {
	m.identities.Set(float64(n))
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
