package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mfortin/radar-loop-service/internal/cache"
	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
	"github.com/mfortin/radar-loop-service/internal/radar"
	"github.com/mfortin/radar-loop-service/internal/wms"
)

// Defaults are the session parameters applied when the caller omits them.
type Defaults struct {
	RadiusKm float64
	Width    int
	Height   int
}

// Options configures a RadarService.
type Options struct {
	RasterTTL       time.Duration // basemap/legend cache TTL
	FrameDelay      time.Duration // per-frame GIF display time
	Defaults        Defaults
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// RadarService orchestrates the imagery pipeline: session construction
// with cached static rasters, frame assembly, and animation encoding.
// Radar tiles and time ranges are always fetched fresh.
type RadarService struct {
	statics    *staticRasters
	assembler  *radar.Assembler
	frameDelay time.Duration
	defaults   Defaults
	coalescer  *requestCoalescer
	logger     *zap.Logger
}

// NewRadarService wires a RadarService from its dependencies.
func NewRadarService(tiles wms.TileClient, rasterCache cache.Cache, assembler *radar.Assembler, opts Options, logger *zap.Logger) *RadarService {
	if opts.FrameDelay <= 0 {
		opts.FrameDelay = radar.DefaultFrameDelay
	}
	if opts.Defaults.RadiusKm <= 0 {
		opts.Defaults.RadiusKm = 200
	}
	if opts.Defaults.Width <= 0 {
		opts.Defaults.Width = 800
	}
	if opts.Defaults.Height <= 0 {
		opts.Defaults.Height = 800
	}
	var coalescer *requestCoalescer
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return &RadarService{
		statics:    newStaticRasters(tiles, rasterCache, opts.RasterTTL),
		assembler:  assembler,
		frameDelay: opts.FrameDelay,
		defaults:   opts.Defaults,
		coalescer:  coalescer,
		logger:     logger,
	}
}

// SessionDefaults returns the configured fallback session parameters.
func (s *RadarService) SessionDefaults() Defaults {
	return s.defaults
}

// loggerFromContext extracts the request-scoped logger if the middleware
// stored one. Returns nil otherwise.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Latest builds a session and composites the single most recent frame.
// Returns the PNG frame and its timestamp.
func (s *RadarService) Latest(ctx context.Context, opts radar.SessionOptions) (models.CompositeFrame, time.Time, error) {
	frame, ts, err := s.latest(ctx, opts)
	observability.PipelineRunsTotal.WithLabelValues("latest", radar.StageLabel(err)).Inc()
	return frame, ts, err
}

func (s *RadarService) latest(ctx context.Context, opts radar.SessionOptions) (models.CompositeFrame, time.Time, error) {
	start := time.Now()
	session, err := radar.NewSession(ctx, s.statics, opts)
	if err != nil {
		return nil, time.Time{}, err
	}
	frame, ts, err := s.assembler.LatestFrame(ctx, session)
	if err != nil {
		return nil, time.Time{}, err
	}
	if logger := loggerFromContext(ctx); logger != nil {
		logger.Debug("latest frame served",
			zap.Time("frame", ts),
			zap.Duration("duration", time.Since(start)))
	}
	return frame, ts, nil
}

// Loop builds the full animation for the session parameters. Concurrent
// calls with identical parameters are coalesced into one pipeline run
// when coalescing is enabled.
func (s *RadarService) Loop(ctx context.Context, opts radar.SessionOptions) (models.Animation, error) {
	if s.coalescer == nil {
		anim, err := s.loop(ctx, opts)
		observability.PipelineRunsTotal.WithLabelValues("loop", radar.StageLabel(err)).Inc()
		return anim, err
	}

	key := loopKey(opts)
	anim, joined, err := s.coalescer.GetOrDo(ctx, key, func() (models.Animation, error) {
		a, runErr := s.loop(ctx, opts)
		observability.PipelineRunsTotal.WithLabelValues("loop", radar.StageLabel(runErr)).Inc()
		return a, runErr
	})
	if joined {
		observability.CoalescingHitsTotal.Inc()
	}
	return anim, err
}

func (s *RadarService) loop(ctx context.Context, opts radar.SessionOptions) (models.Animation, error) {
	start := time.Now()
	session, err := radar.NewSession(ctx, s.statics, opts)
	if err != nil {
		return models.Animation{}, err
	}
	frames, lastFrame, err := s.assembler.Frames(ctx, session)
	if err != nil {
		return models.Animation{}, err
	}
	gifBytes, err := radar.EncodeGIF(frames, s.frameDelay)
	if err != nil {
		return models.Animation{}, fmt.Errorf("%w: %v", radar.ErrComposition, err)
	}
	if logger := loggerFromContext(ctx); logger != nil {
		logger.Debug("animation served",
			zap.Int("frames", len(frames)),
			zap.Time("lastFrame", lastFrame),
			zap.Duration("duration", time.Since(start)))
	}
	return models.Animation{GIF: gifBytes, LastFrame: lastFrame}, nil
}

// PrimeStation warms the static-raster cache for a station by building a
// session with default parameters. The session fetch pulls the basemap
// and seasonal legend through the cache-aside path.
func (s *RadarService) PrimeStation(ctx context.Context, stationID string) error {
	lat, lon, err := geo.StationCoords(stationID)
	if err != nil {
		return err
	}
	opts := radar.SessionOptions{
		Lat:      lat,
		Lon:      lon,
		RadiusKm: s.defaults.RadiusKm,
		Precip:   models.DefaultPrecipKind(time.Now().UTC().Month()),
		Width:    s.defaults.Width,
		Height:   s.defaults.Height,
	}
	_, err = radar.NewSession(ctx, s.statics, opts)
	return err
}

// loopKey identifies one set of loop parameters for coalescing. Two
// requests share a run only if every image-affecting input matches.
func loopKey(opts radar.SessionOptions) string {
	return fmt.Sprintf("loop:%s:%.5f:%.5f:%g:%dx%d",
		opts.Precip, opts.Lat, opts.Lon, opts.RadiusKm, opts.Width, opts.Height)
}
