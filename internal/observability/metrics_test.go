package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	RecordWMSRequest("radar", "success", 120*time.Millisecond)
	HTTPRequestsTotal.WithLabelValues("GET", "/radar/{station}/loop.gif", "2xx").Inc()
	CacheHitsTotal.WithLabelValues("basemap").Inc()
	PipelineRunsTotal.WithLabelValues("loop", "ok").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"wmsRequestsTotal",
		"wmsRequestDurationSeconds",
		"httpRequestsTotal",
		"cacheHitsTotal",
		"pipelineRunsTotal",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestRegisterRateLimitGaugesIdempotent(t *testing.T) {
	// A second call must not panic on duplicate registration.
	RegisterRateLimitGauges(time.Minute)
	RegisterRateLimitGauges(time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "rateLimitRequestsInWindow") {
		t.Error("metrics output missing rateLimitRequestsInWindow gauge")
	}
}
