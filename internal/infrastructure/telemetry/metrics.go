package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded by list and item controllers
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
	OutcomeRejected  = "rejected"
)

// ClientMetrics holds the Prometheus collectors of the API client.
// A nil *ClientMetrics is valid and records nothing.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type ClientMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	listFetches     *prometheus.CounterVec
	mutations       *prometheus.CounterVec
}

// NewClientMetrics registers the client collectors on a fresh registry
func NewClientMetrics(namespace string) *ClientMetrics {
	if namespace == "" {
		namespace = "appinv"
	}
	m := &ClientMetrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of API requests by method, resource and status code.",
		},
		[]string{"method", "resource", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)
	m.listFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "list",
			Name:      "fetches_total",
			Help:      "List fetches by list name and outcome (success, error, discarded).",
		},
		[]string{"list", "outcome"},
	)
	m.mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "item",
			Name:      "operations_total",
			Help:      "Item operations by entity, operation and outcome.",
		},
		[]string{"entity", "operation", "outcome"},
	)

	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.listFetches, m.mutations)
	return m
}

// Registry returns the underlying registry
func (m *ClientMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *ClientMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one API round trip. status 0 means no response was obtained.
func (m *ClientMetrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	res := ResourceOf(path)
	code := "network_error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, res, code).Inc()
	m.requestDuration.WithLabelValues(method, res).Observe(d.Seconds())
}

// ObserveListFetch records the outcome of one list fetch
func (m *ClientMetrics) ObserveListFetch(list, outcome string) {
	if m == nil {
		return
	}
	m.listFetches.WithLabelValues(list, outcome).Inc()
}

// ObserveItemOperation records the outcome of one item controller operation
func (m *ClientMetrics) ObserveItemOperation(entity, operation, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, operation, outcome).Inc()
}

// ResourceOf reduces a request path to its first segment so ids do not
// explode label cardinality: "/clientes/12" -> "clientes"
func ResourceOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
