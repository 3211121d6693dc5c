package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("envsafe_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "envsafe_test"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ready", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	router.GET("/snapshots/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	requests := []struct {
		path string
		code int
	}{
		{path: "/health", code: http.StatusOK},
		{path: "/health", code: http.StatusOK},
		{path: "/ready", code: http.StatusServiceUnavailable},
		{path: "/snapshots/1", code: http.StatusOK},
		{path: "/snapshots/2", code: http.StatusOK},
		{path: "/wp-admin", code: http.StatusNotFound},
	}
	for _, r := range requests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, r.path, nil))
		require.Equal(t, r.code, w.Code, r.path)
	}

	output := scrape(t, provider)

	assertBizMetricLine(t, output, `envsafe_test_http_requests_total`,
		`method="GET".*path="/health".*status_code="200"`, `2`)
	assertBizMetricLine(t, output, `envsafe_test_http_requests_total`,
		`method="GET".*path="/ready".*status_code="503"`, `1`)
	assertBizMetricLine(t, output, `envsafe_test_http_requests_total`,
		`method="GET".*path="/snapshots/:id".*status_code="200"`, `2`)
	assertBizMetricLine(t, output, `envsafe_test_http_requests_total`,
		`method="GET".*path="unknown".*status_code="404"`, `1`)
	assertBizMetricLine(t, output, `envsafe_test_http_request_duration_seconds_count`,
		`path="/health"`, `2`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/snapshots/:id", routeLabel("/snapshots/:id"))
	assert.Equal(t, "/", routeLabel("/"))
	assert.Equal(t, unmatchedRoute, routeLabel(""))
}
