package radar

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"testing"

	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/wms"
)

type fakeStatics struct {
	basemap    []byte
	legend     []byte
	basemapErr error
	legendErr  error

	basemapCalls int
	legendCalls  int
}

func (f *fakeStatics) GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error) {
	f.basemapCalls++
	return f.basemap, f.basemapErr
}

func (f *fakeStatics) GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error) {
	f.legendCalls++
	return f.legend, f.legendErr
}

func validOptions() SessionOptions {
	return SessionOptions{
		Lat:      45.7903,
		Lon:      -73.8658,
		RadiusKm: 200,
		Precip:   models.PrecipRain,
		Width:    800,
		Height:   800,
	}
}

func TestNewSession(t *testing.T) {
	statics := &fakeStatics{
		basemap: encodePNG(t, 800, 800, color.RGBA{0, 0, 255, 255}),
		legend:  encodePNG(t, 120, 300, color.RGBA{0, 255, 0, 255}),
	}

	s, err := NewSession(context.Background(), statics, validOptions())
	if err != nil {
		t.Fatalf("NewSession returned error: %v", err)
	}

	if s.Layer != "RADAR_1KM_RRAI" {
		t.Errorf("layer = %q, want RADAR_1KM_RRAI", s.Layer)
	}
	if s.MapParams.Width != 800 || s.MapParams.Height != 800 {
		t.Errorf("map params = %dx%d, want 800x800", s.MapParams.Width, s.MapParams.Height)
	}
	if s.LegendOffset.X != 800-120 || s.LegendOffset.Y != 0 {
		t.Errorf("legend offset = %v, want (680, 0)", s.LegendOffset)
	}
	if statics.basemapCalls != 1 || statics.legendCalls != 1 {
		t.Errorf("static fetches = %d basemap, %d legend; want 1 each", statics.basemapCalls, statics.legendCalls)
	}

	// The bounding box is centred on the requested point.
	centerLat := (s.MapParams.BBox.LatMin + s.MapParams.BBox.LatMax) / 2
	if diff := centerLat - 45.7903; diff > 1e-4 || diff < -1e-4 {
		t.Errorf("bbox centre latitude = %v, want 45.7903", centerLat)
	}
}

func TestNewSessionOutOfDomain(t *testing.T) {
	statics := &fakeStatics{}
	opts := validOptions()
	opts.Lat = 89.9
	opts.RadiusKm = 500

	_, err := NewSession(context.Background(), statics, opts)
	if !errors.Is(err, geo.ErrOutOfDomain) {
		t.Fatalf("NewSession error = %v, want ErrOutOfDomain", err)
	}
	if statics.basemapCalls != 0 && statics.legendCalls != 0 {
		t.Error("no rasters should be fetched when geometry is rejected")
	}
}

func TestNewSessionUndecodableLegend(t *testing.T) {
	statics := &fakeStatics{
		basemap: encodePNG(t, 800, 800, color.RGBA{0, 0, 255, 255}),
		legend:  []byte("not an image"),
	}

	_, err := NewSession(context.Background(), statics, validOptions())
	if !errors.Is(err, ErrComposition) {
		t.Fatalf("NewSession error = %v, want ErrComposition", err)
	}
}

func TestNewSessionFetchFailure(t *testing.T) {
	statics := &fakeStatics{
		legend:     encodePNG(t, 120, 300, color.RGBA{0, 255, 0, 255}),
		basemapErr: fmt.Errorf("%w: HTTP 503 for basemap request", wms.ErrFetch),
	}

	_, err := NewSession(context.Background(), statics, validOptions())
	if !errors.Is(err, wms.ErrFetch) {
		t.Fatalf("NewSession error = %v, want ErrFetch", err)
	}
}
