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

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesRuntimeCollectors(t *testing.T) {
	body := scrape(t, NewMetrics())
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `hadmean_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `hadmean_http_request_duration_seconds_bucket{route="/test"`)
}

func TestPipelineAndPerformCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordPipelineFailure("authorize", http.StatusUnauthorized)
	metrics.RecordPipelineFailure("authorize", http.StatusUnauthorized)
	metrics.RecordActionPerform("slack", "SEND_MESSAGE", "success")

	body := scrape(t, metrics)
	assert.Contains(t, body, `hadmean_pipeline_failures_total{code="401",stage="authorize"} 2`)
	assert.Contains(t, body, `hadmean_action_performs_total{integration="slack",outcome="success",perform="SEND_MESSAGE"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordPipelineFailure("validate", http.StatusBadRequest)
	metrics.RecordActionPerform("http", "SEND_REQUEST", "failure")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
