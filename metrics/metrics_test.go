package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/agreements/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/agreements/agr-1/history", nil))

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/v1/agreements/{id}/history", "418"))
	assert.Equal(t, float64(1), got)
}

func TestObserveCounters(t *testing.T) {
	m := New()
	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("accept", "conflict")
	m.ObserveSettlement("ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.transitions.WithLabelValues("accept", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("accept", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.settlements.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mudahtitip_agreement_transitions_total")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("propose", "ok")
	m.ObserveSettlement("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegistererExposesExtraCollectors(t *testing.T) {
	m := New()
	extra := prometheus.NewGauge(prometheus.GaugeOpts{Name: "mudahtitip_test_gauge", Help: "test"})
	extra.Set(3)
	require.NoError(t, m.Registerer().Register(extra))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "mudahtitip_test_gauge 3")
}
