package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity"

// Metrics holds the Prometheus collectors for the identity service. It
// implements identity.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	AuthAttemptsTotal *prometheus.CounterVec
	AuthLatency       *prometheus.HistogramVec

	// Business metrics
	CreditMutationsTotal *prometheus.CounterVec
	ReconciliationsTotal *prometheus.CounterVec
}

var _ identity.Observer = (*Metrics)(nil)

// New creates and registers all collectors on registry. A nil registry gets
// a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Authentication attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		AuthLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auth_duration_seconds",
				Help:      "Authentication latency in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),
		CreditMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credit_mutations_total",
				Help:      "Credit mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Federated reconciliations by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.AuthLatency,
		m.CreditMutationsTotal,
		m.ReconciliationsTotal,
	)

	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterRuntime adds the Go runtime and process collectors
func (m *Metrics) RegisterRuntime() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RegisterDBStats exports connection pool statistics for db
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) {
	if db == nil {
		return
	}
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// AuthAttempt implements identity.Observer
func (m *Metrics) AuthAttempt(method, outcome string) {
	m.AuthAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// AuthDuration implements identity.Observer
func (m *Metrics) AuthDuration(method string, d time.Duration) {
	m.AuthLatency.WithLabelValues(method).Observe(d.Seconds())
}

// CreditMutation implements identity.Observer
func (m *Metrics) CreditMutation(operation, outcome string) {
	m.CreditMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Reconciled implements identity.Observer
func (m *Metrics) Reconciled(outcome identity.ReconcileOutcome) {
	m.ReconciliationsTotal.WithLabelValues(string(outcome)).Inc()
}

// Middleware instruments fiber requests. Routes are labeled by their
// registered pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := c.Route().Path
		method := c.Method()
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
