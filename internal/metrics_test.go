package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/equipment/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/equipment/7", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := metricsBody(t, m)
	// Route label is the pattern, not the raw path.
	assert.Contains(t, body, `http_requests_total{method="GET",route="/equipment/{id}",status="404"} 1`)
	assert.NotContains(t, body, "/equipment/7")
	assert.Contains(t, body, "http_request_duration_seconds")
}

func TestMetricsDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.BookingCreated("reservation")
	m.BookingCreated("reservation")
	m.BookingCreated("loan")
	m.ConflictDetected("app")
	m.ConflictDetected("storage")
	m.CompensationRun("reverted")

	body := metricsBody(t, m)
	assert.Contains(t, body, `bookings_created_total{kind="reservation"} 2`)
	assert.Contains(t, body, `bookings_created_total{kind="loan"} 1`)
	assert.Contains(t, body, `booking_conflicts_total{source="app"} 1`)
	assert.Contains(t, body, `booking_conflicts_total{source="storage"} 1`)
	assert.Contains(t, body, `booking_compensations_total{outcome="reverted"} 1`)
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.BookingCreated("loan")

	assert.Contains(t, metricsBody(t, a), `bookings_created_total{kind="loan"} 1`)
	assert.False(t, strings.Contains(metricsBody(t, b), `bookings_created_total{kind="loan"} 1`))
}
