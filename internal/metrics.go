package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors on a private registry so tests can
// construct independent instances without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	bookingsCreated  *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	compensationsRun *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		bookingsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_created_total",
				Help: "Bookings accepted, by kind (reservation or loan)",
			},
			[]string{"kind"},
		),
		conflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_conflicts_total",
				Help: "Booking conflicts detected, by source (app or storage)",
			},
			[]string{"source"},
		),
		compensationsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_compensations_total",
				Help: "Compensating rollbacks run during conversion, by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.requestsInFlight,
		m.bookingsCreated,
		m.conflictsTotal,
		m.compensationsRun,
	)

	return m
}

// BookingCreated implements booking.Metrics.
func (m *Metrics) BookingCreated(kind string) {
	m.bookingsCreated.WithLabelValues(kind).Inc()
}

// ConflictDetected implements booking.Metrics.
func (m *Metrics) ConflictDetected(source string) {
	m.conflictsTotal.WithLabelValues(source).Inc()
}

// CompensationRun implements booking.Metrics.
func (m *Metrics) CompensationRun(outcome string) {
	m.compensationsRun.WithLabelValues(outcome).Inc()
}

// Handler returns the /metrics endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count, duration, and in-flight gauge per route.
// Route labels use the chi route pattern, not the raw path, to keep
// cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
