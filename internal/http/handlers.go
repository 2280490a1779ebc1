package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/health"
	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/radar"
	"github.com/mfortin/radar-loop-service/internal/service"
	"github.com/mfortin/radar-loop-service/internal/validation"
)

// HealthConfig holds the thresholds the health handler evaluates.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	RateLimitBurst         int // 0 when rate limiter disabled
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// CachePing, when set, checks raster cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	radarService     *service.RadarService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(radarService *service.RadarService, healthConfig *HealthConfig, logger *zap.Logger, rateLimiter *rate.Limiter) *Handler {
	return &Handler{
		radarService: radarService,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
	}
}

// GetStationLatest handles GET /radar/{station}/latest.png.
func (h *Handler) GetStationLatest(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.stationOptions(w, r)
	if !ok {
		return
	}
	h.serveLatest(w, r, opts)
}

// GetStationLoop handles GET /radar/{station}/loop.gif.
func (h *Handler) GetStationLoop(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.stationOptions(w, r)
	if !ok {
		return
	}
	h.serveLoop(w, r, opts)
}

// GetPointLatest handles GET /radar/latest.png?lat=..&lon=..
func (h *Handler) GetPointLatest(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.pointOptions(w, r)
	if !ok {
		return
	}
	h.serveLatest(w, r, opts)
}

// GetPointLoop handles GET /radar/loop.gif?lat=..&lon=..
func (h *Handler) GetPointLoop(w http.ResponseWriter, r *http.Request) {
	opts, ok := h.pointOptions(w, r)
	if !ok {
		return
	}
	h.serveLoop(w, r, opts)
}

func (h *Handler) serveLatest(w http.ResponseWriter, r *http.Request, opts radar.SessionOptions) {
	frame, ts, err := h.radarService.Latest(r.Context(), opts)
	if err != nil {
		health.RecordError()
		writePipelineError(w, r, err)
		return
	}
	health.RecordSuccess()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Radar-Timestamp", ts.UTC().Format(time.RFC3339))
	_, _ = w.Write(frame)
}

func (h *Handler) serveLoop(w http.ResponseWriter, r *http.Request, opts radar.SessionOptions) {
	anim, err := h.radarService.Loop(r.Context(), opts)
	if err != nil {
		health.RecordError()
		writePipelineError(w, r, err)
		return
	}
	health.RecordSuccess()
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("X-Radar-Timestamp", anim.LastFrame.UTC().Format(time.RFC3339))
	_, _ = w.Write(anim.GIF)
}

// stationOptions resolves the {station} path variable to coordinates and
// parses the shared query parameters.
func (h *Handler) stationOptions(w http.ResponseWriter, r *http.Request) (radar.SessionOptions, bool) {
	station, err := validation.ValidateStationID(mux.Vars(r)["station"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", err.Error())
		return radar.SessionOptions{}, false
	}
	lat, lon, err := geo.StationCoords(station)
	if err != nil {
		if errors.Is(err, geo.ErrUnknownStation) {
			writeError(w, r, http.StatusNotFound, "UNKNOWN_STATION", "no radar station with ID "+station)
			return radar.SessionOptions{}, false
		}
		writeError(w, r, http.StatusInternalServerError, "STATION_LOOKUP_FAILED", "station lookup failed")
		return radar.SessionOptions{}, false
	}
	return h.queryOptions(w, r, lat, lon)
}

// pointOptions parses required lat/lon query values plus the shared
// query parameters.
func (h *Handler) pointOptions(w http.ResponseWriter, r *http.Request) (radar.SessionOptions, bool) {
	q := r.URL.Query()
	lat, lon, err := validation.ValidateCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return radar.SessionOptions{}, false
	}
	return h.queryOptions(w, r, lat, lon)
}

// queryOptions parses radius, precip, width and height, applying the
// configured defaults. The seasonal precip default is resolved here so
// everything below the HTTP boundary gets a concrete kind.
func (h *Handler) queryOptions(w http.ResponseWriter, r *http.Request, lat, lon float64) (radar.SessionOptions, bool) {
	q := r.URL.Query()
	defaults := h.radarService.SessionDefaults()

	radius, err := validation.ValidateRadius(q.Get("radius"), defaults.RadiusKm)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_RADIUS", err.Error())
		return radar.SessionOptions{}, false
	}
	width, err := validation.ValidateDimension(q.Get("width"), defaults.Width)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DIMENSIONS", err.Error())
		return radar.SessionOptions{}, false
	}
	height, err := validation.ValidateDimension(q.Get("height"), defaults.Height)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DIMENSIONS", err.Error())
		return radar.SessionOptions{}, false
	}

	precip := models.DefaultPrecipKind(time.Now().UTC().Month())
	if p := q.Get("precip"); p != "" {
		precip, err = models.ParsePrecipKind(p)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_PRECIP", "precip must be rain or snow")
			return radar.SessionOptions{}, false
		}
	}

	return radar.SessionOptions{
		Lat:      lat,
		Lon:      lon,
		RadiusKm: radius,
		Precip:   precip,
		Width:    width,
		Height:   height,
	}, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["radarPipeline"] = "unhealthy"
	} else {
		checks["radarPipeline"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "radar-loop-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy. Each condition
// is evaluated only if previous conditions are not met.
func (h *Handler) computeHealthStatus() healthResult {
	if health.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(health.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.healthConfig.IdleWindow > 0 && h.healthConfig.MinimumLifespan > 0 && time.Since(h.healthConfig.StartTime) >= h.healthConfig.MinimumLifespan {
		if health.RequestCount(h.healthConfig.IdleWindow) < h.healthConfig.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := health.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writePipelineError maps a pipeline failure to an HTTP response. Client
// geometry mistakes are 400s; everything upstream or internal is a 503
// except deadline overruns, which are 504s.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("pipeline error", zap.Error(err))
	}
	if errors.Is(err, geo.ErrOutOfDomain) {
		writeError(w, r, http.StatusBadRequest, "OUT_OF_DOMAIN", "requested radius is not representable at this latitude")
		return
	}
	switch stage := radar.StageLabel(err); stage {
	case "timeout":
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "imagery pipeline timed out")
	case "resolve":
		writeError(w, r, http.StatusServiceUnavailable, "TIME_RESOLUTION_FAILED", "unable to resolve published radar time range")
	case "fetch":
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_FETCH_FAILED", "unable to fetch radar imagery")
	case "compose":
		writeError(w, r, http.StatusServiceUnavailable, "COMPOSITION_FAILED", "unable to compose radar imagery")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "PIPELINE_FAILED", "unable to build radar imagery")
	}
}
