package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/metrics"
)

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New(&config.Config{})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/?q=https%3A%2F%2Fexample.com", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "proxy")); got != 1 {
		t.Errorf("requests_total{GET,200,proxy} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("in-flight gauge = %v, want 0 after the request", got)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New(&config.Config{})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.CollectAndCount(m.RequestDuration, "cors_proxy_http_request_duration_seconds"); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New(&config.Config{})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/test", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "422", "proxy")); got != 1 {
		t.Errorf("requests_total{GET,422,proxy} = %v, want 1", got)
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New(&config.Config{})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	// No routes registered; request should yield 404.

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "404", "proxy")); got != 1 {
		t.Errorf("requests_total{GET,404,proxy} = %v, want 1", got)
	}
}

func TestMetricsMiddleware_CustomMetricsPathLabel(t *testing.T) {
	m := metrics.New(&config.Config{Metrics: config.MetricsConfig{Enabled: true, Path: "/internal/metrics"}})

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/internal/metrics", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/internal/metrics", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "/internal/metrics")); got != 1 {
		t.Errorf("requests_total{GET,200,/internal/metrics} = %v, want 1", got)
	}
	// /metrics is not the scrape endpoint here, so it is proxied traffic.
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200", "proxy")); got != 1 {
		t.Errorf("requests_total{GET,200,proxy} = %v, want 1", got)
	}
}
