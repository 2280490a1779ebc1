package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mfortin/radar-loop-service/internal/observability"
)

// StationPrimer prefetches the static rasters for a station so the first
// user request does not pay the upstream round trips.
type StationPrimer interface {
	PrimeStation(ctx context.Context, stationID string) error
}

// Warmer periodically primes the raster cache for a fixed set of
// stations. Priming failures are logged and counted but never stop the
// warming loop.
type Warmer struct {
	primer   StationPrimer
	stations []string
	interval time.Duration
	logger   *zap.Logger
}

// NewWarmer creates a Warmer. interval defaults to 30 minutes when
// non-positive.
func NewWarmer(primer StationPrimer, stations []string, interval time.Duration, logger *zap.Logger) *Warmer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Warmer{
		primer:   primer,
		stations: stations,
		interval: interval,
		logger:   logger,
	}
}

// Start runs an immediate warming pass, then repeats on the configured
// interval until ctx is cancelled. Call in its own goroutine.
func (w *Warmer) Start(ctx context.Context) {
	if len(w.stations) == 0 {
		return
	}

	w.warmAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cache warming stopped")
			return
		case <-ticker.C:
			w.warmAll(ctx)
		}
	}
}

func (w *Warmer) warmAll(ctx context.Context) {
	start := time.Now()
	warmed := 0
	for _, station := range w.stations {
		if ctx.Err() != nil {
			return
		}
		observability.CacheWarmingTotal.Inc()
		if err := w.primer.PrimeStation(ctx, station); err != nil {
			observability.CacheWarmingErrorsTotal.Inc()
			w.logger.Warn("cache warming failed",
				zap.String("station", station),
				zap.Error(err))
			continue
		}
		warmed++
	}
	w.logger.Info("cache warming pass complete",
		zap.Int("warmed", warmed),
		zap.Int("stations", len(w.stations)),
		zap.Duration("elapsed", time.Since(start)))
}
