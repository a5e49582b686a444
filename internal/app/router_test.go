package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func testRouter(limit int) http.Handler {
	return NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "development", RateLimitPerMinute: limit},
		Metrics: observability.NewMetrics(),
	})
}

func TestRouterHealthz(t *testing.T) {
	r := testRouter(60)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Ratelimit-Limit"))
}

func TestRouterMetricsEndpoint(t *testing.T) {
	r := testRouter(60)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `odyssey_pos_http_requests_total{code="200",route="/healthz"} 1`), rr.Body.String())
}

func TestRouterUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(60).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRouterRateLimit(t *testing.T) {
	r := testRouter(2)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
