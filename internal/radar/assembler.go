package radar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
)

// TimeRangeResolver resolves the published data range for a layer.
type TimeRangeResolver interface {
	ResolveTimeRange(ctx context.Context, layer string) (models.TimeInterval, error)
}

// FrameFetcher retrieves one radar raster per timestamp. Implementations
// must be safe for concurrent use; the assembler issues all per-frame
// requests at once.
type FrameFetcher interface {
	GetRadarMap(ctx context.Context, layer string, mp models.MapParams, frameTime time.Time) ([]byte, error)
}

// Assembler runs the frame pipeline for a session: resolve the time
// range, schedule frame timestamps, fetch rasters concurrently, composite
// in chronological order. Any stage failure aborts the whole run; there
// are no retries and no partial results.
type Assembler struct {
	resolver   TimeRangeResolver
	tiles      FrameFetcher
	compositor *Compositor
	cadence    time.Duration
	padFrames  int
	logger     *zap.Logger
}

// NewAssembler wires an Assembler. cadence defaults to DefaultCadence
// when non-positive, padFrames to DefaultPadFrames when negative.
func NewAssembler(resolver TimeRangeResolver, tiles FrameFetcher, compositor *Compositor, cadence time.Duration, padFrames int, logger *zap.Logger) *Assembler {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	if padFrames < 0 {
		padFrames = DefaultPadFrames
	}
	return &Assembler{
		resolver:   resolver,
		tiles:      tiles,
		compositor: compositor,
		cadence:    cadence,
		padFrames:  padFrames,
		logger:     logger,
	}
}

// LatestFrame composites the single most recent frame. Returns the frame
// and its timestamp.
func (a *Assembler) LatestFrame(ctx context.Context, s *Session) (models.CompositeFrame, time.Time, error) {
	interval, err := a.resolver.ResolveTimeRange(ctx, s.Layer)
	if err != nil {
		return nil, time.Time{}, err
	}

	raster, err := a.tiles.GetRadarMap(ctx, s.Layer, s.MapParams, interval.End)
	if err != nil {
		return nil, time.Time{}, err
	}

	frame, err := a.compositor.Compose(s, raster, interval.End)
	if err != nil {
		return nil, time.Time{}, err
	}
	return frame, interval.End, nil
}

// Frames builds the full ordered animation sequence: one composite per
// scheduled timestamp plus padFrames duplicates of the final frame, so a
// looping player holds on the most recent image. Returns the sequence and
// the timestamp of the most recent real frame.
func (a *Assembler) Frames(ctx context.Context, s *Session) ([]models.CompositeFrame, time.Time, error) {
	interval, err := a.resolver.ResolveTimeRange(ctx, s.Layer)
	if err != nil {
		return nil, time.Time{}, err
	}

	times := FrameTimes(interval.Start, interval.End, a.cadence)
	observability.AnimationFrames.Observe(float64(len(times)))
	if a.logger != nil {
		a.logger.Debug("fetching radar frames",
			zap.String("layer", s.Layer),
			zap.Int("frames", len(times)),
			zap.Time("start", interval.Start),
			zap.Time("end", interval.End))
	}

	// Fan-out with results written into per-timestamp slots: completion
	// order never matters, the slot index restores chronological order.
	rasters := make([][]byte, len(times))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range times {
		i, t := i, t
		g.Go(func() error {
			raster, err := a.tiles.GetRadarMap(gctx, s.Layer, s.MapParams, t)
			if err != nil {
				return fmt.Errorf("frame %s: %w", t.UTC().Format(time.RFC3339), err)
			}
			rasters[i] = raster
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, time.Time{}, err
	}

	frames := make([]models.CompositeFrame, 0, len(times)+a.padFrames)
	for i, raster := range rasters {
		frame, err := a.compositor.Compose(s, raster, times[i])
		if err != nil {
			return nil, time.Time{}, err
		}
		frames = append(frames, frame)
	}

	for i := 0; i < a.padFrames; i++ {
		frames = append(frames, frames[len(frames)-1])
	}
	return frames, times[len(times)-1], nil
}
