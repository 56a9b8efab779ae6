package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptveil"

// Metrics bundles the service's Prometheus collectors around one private
// registry. The registry is owned by the Metrics value and injected where
// needed, so parallel tests never fight over a global registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	entitiesRedacted *prometheus.CounterVec
	tokensRestored   prometheus.Counter
	tokensStripped   prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		entitiesRedacted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_redacted_total",
				Help:      "Distinct entities redacted, by entity type",
			},
			[]string{"type"},
		),
		tokensRestored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_restored_total",
				Help:      "Placeholder tokens restored to their original value",
			},
		),
		tokensStripped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_stripped_total",
				Help:      "Hallucinated placeholder tokens stripped during reconstruction",
			},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.entitiesRedacted,
		m.tokensRestored,
		m.tokensStripped,
	)
	return m
}

// Handler exposes the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, status).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// AddRedacted records distinct redacted entities for one pass.
func (m *Metrics) AddRedacted(entityType string, n int) {
	m.entitiesRedacted.WithLabelValues(entityType).Add(float64(n))
}

// AddReconstructed records restore/strip counts for one reconstruction pass.
func (m *Metrics) AddReconstructed(restored, stripped int) {
	m.tokensRestored.Add(float64(restored))
	m.tokensStripped.Add(float64(stripped))
}
