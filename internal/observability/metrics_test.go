package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/calendar/{id}")

	req := httptest.NewRequest(http.MethodGet, "/calendar/42", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `sasswatch_http_requests_total{code="418",route="/calendar/{id}"} 1`)
	assert.Contains(t, body, `sasswatch_http_request_duration_seconds_bucket{route="/calendar/{id}"`)
}

func TestObserveDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("authenticate", "allow")
	metrics.ObserveDecision("authenticate", "allow")
	metrics.ObserveDecision("route", "deny")
	metrics.ObserveAudit("enqueued")

	body := scrape(t, metrics)
	assert.Contains(t, body, `sasswatch_auth_decisions_total{outcome="allow",stage="authenticate"} 2`)
	assert.Contains(t, body, `sasswatch_auth_decisions_total{outcome="deny",stage="route"} 1`)
	assert.Contains(t, body, `sasswatch_audit_tasks_total{result="enqueued"} 1`)
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision("authenticate", "allow")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
