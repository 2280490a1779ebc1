package radar

import (
	"bytes"
	"context"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"

	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/models"
)

// StaticFetcher supplies the session's one-time rasters. The service
// layer implements it with a cache-aside wrapper around the WMS client.
type StaticFetcher interface {
	GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error)
	GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error)
}

// SessionOptions carries the caller-resolved inputs for one session.
// Precip is already concrete here; the seasonal month default is applied
// at the HTTP boundary so the core never reads the ambient clock.
type SessionOptions struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
	Precip   models.PrecipKind
	Width    int
	Height   int
}

// Session is the immutable per-request configuration: everything that
// depends only on geometry and precipitation kind, not on time. The
// basemap and legend are fetched exactly once here and shared read-only
// across all concurrent per-frame composition work.
type Session struct {
	Precip       models.PrecipKind
	Layer        string
	MapParams    models.MapParams
	Basemap      []byte
	Legend       image.Image
	LegendOffset image.Point
}

// NewSession computes the bounding box and fetches the basemap and legend.
// The returned session must not be mutated.
func NewSession(ctx context.Context, fetcher StaticFetcher, opts SessionOptions) (*Session, error) {
	box, err := geo.BoundingBox(opts.RadiusKm, opts.Lat, opts.Lon)
	if err != nil {
		return nil, err
	}

	mp := models.MapParams{BBox: box, Width: opts.Width, Height: opts.Height}
	layer := opts.Precip.Layer()

	legendBytes, err := fetcher.GetLegendGraphic(ctx, layer, opts.Precip.LegendStyle())
	if err != nil {
		return nil, err
	}
	legend, _, err := image.Decode(bytes.NewReader(legendBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode legend: %v", ErrComposition, err)
	}

	basemap, err := fetcher.GetBasemap(ctx, mp)
	if err != nil {
		return nil, err
	}

	return &Session{
		Precip:       opts.Precip,
		Layer:        layer,
		MapParams:    mp,
		Basemap:      basemap,
		Legend:       legend,
		LegendOffset: image.Pt(opts.Width-legend.Bounds().Dx(), 0),
	}, nil
}
