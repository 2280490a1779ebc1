package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfortin/radar-loop-service/internal/health"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream WMS call rate per request kind. Watch for: error vs success ratio per kind.
	WMSRequestsTotal *prometheus.CounterVec

	// Upstream WMS latency per request. Watch for: p95 > 2s (geomet degradation), p99 > 5s (timeout risk).
	WMSRequestDuration *prometheus.HistogramVec

	// Static-raster cache hits (basemap, legend). Misses fall through to the WMS fetch.
	CacheHitsTotal *prometheus.CounterVec

	// Static-raster cache errors by operation. Watch for: backend connectivity trouble.
	CacheErrorsTotal *prometheus.CounterVec

	// Pipeline runs by operation (latest, loop) and outcome stage label.
	PipelineRunsTotal *prometheus.CounterVec

	// Frames fetched per animation run. Watch for: geomet shrinking its published range.
	AnimationFrames prometheus.Histogram

	// Frame composition latency. CPU-bound decode/draw/encode per frame.
	ComposeDuration prometheus.Histogram

	// GIF encode latency per animation.
	EncodeDuration prometheus.Histogram

	// Concurrent basemap cache misses for one key. Watch for: stampedes on popular stations.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Coalesced loop requests: callers that waited on another run instead of starting one.
	CoalescingHitsTotal prometheus.Counter

	// Cache warming runs and failures at startup and on the refresh interval.
	CacheWarmingTotal       prometheus.Counter
	CacheWarmingErrorsTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WMSRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wmsRequestsTotal",
			Help: "Total number of upstream WMS requests by kind (capabilities, radar, basemap, legend)",
		},
		[]string{"kind", "status"},
	)
	WMSRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wmsRequestDurationSeconds",
			Help:    "Upstream WMS latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Static-raster cache hits by raster type (basemap, legend)",
		},
		[]string{"rasterType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Static-raster cache errors by operation (get, set)",
		},
		[]string{"operation"},
	)
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Radar pipeline runs by operation (latest, loop) and result stage (ok or the failed stage)",
		},
		[]string{"operation", "result"},
	)
	AnimationFrames = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animationFramesPerLoop",
			Help:    "Number of real frames fetched per animation run (pad frames excluded)",
			Buckets: []float64{1, 3, 6, 9, 12, 18, 24, 36},
		},
	)
	ComposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "frameComposeDurationSeconds",
			Help:    "Composite frame decode/draw/encode latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1},
		},
	)
	EncodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "animationEncodeDurationSeconds",
			Help:    "Animated GIF encode latency in seconds (per loop)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent static-raster cache misses for the same key",
		},
		[]string{"rasterType"},
	)
	CoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Loop requests served by waiting on an identical in-flight run",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Basemap/legend cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one failure",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WMSRequestsTotal, WMSRequestDuration,
		CacheHitsTotal, CacheErrorsTotal,
		PipelineRunsTotal, AnimationFrames, ComposeDuration, EncodeDuration,
		CacheStampedeDetectedTotal, CoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordWMSRequest records one upstream call. kind is the request shape,
// status a stable label (success, client_error, server_error, error).
func RecordWMSRequest(kind, status string, elapsed time.Duration) {
	WMSRequestsTotal.WithLabelValues(kind, status).Inc()
	WMSRequestDuration.WithLabelValues(kind, status).Observe(elapsed.Seconds())
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load. Uses the same window as the overload health check.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(health.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(health.DenialCount(window)) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
