package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mfortin/radar-loop-service/internal/cache"
	"github.com/mfortin/radar-loop-service/internal/config"
	"github.com/mfortin/radar-loop-service/internal/health"
	httphandler "github.com/mfortin/radar-loop-service/internal/http"
	"github.com/mfortin/radar-loop-service/internal/observability"
	"github.com/mfortin/radar-loop-service/internal/radar"
	"github.com/mfortin/radar-loop-service/internal/service"
	"github.com/mfortin/radar-loop-service/internal/wms"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tileClient, err := wms.NewClient(cfg.GeometURL, cfg.BasemapURL, cfg.BasemapLayer, cfg.WMSTimeout)
	if err != nil {
		logger.Fatal("wms client", zap.Error(err))
	}

	var rasterCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		rasterCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		rasterCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	displayLoc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		logger.Fatal("display timezone", zap.Error(err))
	}

	compositor := radar.NewCompositor(displayLoc)
	assembler := radar.NewAssembler(tileClient, tileClient, compositor, cfg.FrameCadence, cfg.PadFrames, logger)
	radarService := service.NewRadarService(tileClient, rasterCache, assembler, service.Options{
		RasterTTL:  cfg.CacheTTL,
		FrameDelay: cfg.FrameDelay,
		Defaults: service.Defaults{
			RadiusKm: cfg.DefaultRadiusKm,
			Width:    cfg.DefaultWidth,
			Height:   cfg.DefaultHeight,
		},
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		RateLimitBurst:         cfg.RateLimitBurst,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(radarService, healthConfig, logger, limiter)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	warmCtx, warmCancel := context.WithCancel(context.Background())
	defer warmCancel()
	if cfg.WarmCache && len(cfg.TrackedStations) > 0 {
		warmer := cache.NewWarmer(radarService, cfg.TrackedStations, cfg.WarmInterval, logger)
		go warmer.Start(warmCtx)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	radarRouter := router.PathPrefix("/radar").Subrouter()
	radarRouter.Use(httphandler.RateLimitMiddleware(limiter))
	radarRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	radarRouter.HandleFunc("/latest.png", handler.GetPointLatest).Methods("GET")
	radarRouter.HandleFunc("/loop.gif", handler.GetPointLoop).Methods("GET")
	radarRouter.HandleFunc("/{station}/latest.png", handler.GetStationLatest).Methods("GET")
	radarRouter.HandleFunc("/{station}/loop.gif", handler.GetStationLoop).Methods("GET")

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Loop assembly holds the response open for many upstream round trips.
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	health.SetShuttingDown(true)
	warmCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 250*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
