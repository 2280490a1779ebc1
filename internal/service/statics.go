package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mfortin/radar-loop-service/internal/cache"
	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
	"github.com/mfortin/radar-loop-service/internal/wms"
)

// staticRasters is a cache-aside wrapper around the WMS client for the
// time-independent rasters a session needs: basemap and legend. Radar
// tiles never pass through here.
type staticRasters struct {
	tiles    wms.TileClient
	cache    cache.Cache
	ttl      time.Duration
	stampede *stampedeTracker
}

func newStaticRasters(tiles wms.TileClient, c cache.Cache, ttl time.Duration) *staticRasters {
	return &staticRasters{
		tiles:    tiles,
		cache:    c,
		ttl:      ttl,
		stampede: newStampedeTracker(),
	}
}

// GetBasemap returns the basemap raster for the session geometry,
// cache-aside. The key covers everything that changes the image.
func (f *staticRasters) GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error) {
	key := fmt.Sprintf("basemap:%s:%dx%d", mp.BBox, mp.Width, mp.Height)
	return f.fetch(ctx, key, "basemap", func() ([]byte, error) {
		return f.tiles.GetBasemap(ctx, mp)
	})
}

// GetLegendGraphic returns the legend raster for a layer and style,
// cache-aside.
func (f *staticRasters) GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error) {
	key := fmt.Sprintf("legend:%s:%s", layer, style)
	return f.fetch(ctx, key, "legend", func() ([]byte, error) {
		return f.tiles.GetLegendGraphic(ctx, layer, style)
	})
}

func (f *staticRasters) fetch(ctx context.Context, key, rasterType string, upstream func() ([]byte, error)) ([]byte, error) {
	cached, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(rasterType).Inc()
		return cached, nil
	}

	concurrentMisses := f.stampede.RecordMiss(key)
	defer f.stampede.RecordDone(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(rasterType).Inc()
	}

	raster, err := upstream()
	if err != nil {
		return nil, err
	}

	if setErr := f.cache.Set(ctx, key, raster, f.ttl); setErr != nil {
		// A failed cache write is not a request failure; the next miss retries it.
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
	return raster, nil
}
