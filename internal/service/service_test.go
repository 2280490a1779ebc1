package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/mfortin/radar-loop-service/internal/cache"
	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/radar"
)

func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

// fakeTiles implements wms.TileClient against canned rasters, counting
// calls per method.
type fakeTiles struct {
	t        *testing.T
	interval models.TimeInterval

	resolveDelay time.Duration

	mu           sync.Mutex
	resolveCalls int
	radarCalls   int
	basemapCalls int
	legendCalls  int
}

func (f *fakeTiles) GetCapabilities(ctx context.Context, layer string) ([]byte, error) {
	return nil, nil
}

func (f *fakeTiles) ResolveTimeRange(ctx context.Context, layer string) (models.TimeInterval, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()
	if f.resolveDelay > 0 {
		time.Sleep(f.resolveDelay)
	}
	return f.interval, nil
}

func (f *fakeTiles) GetRadarMap(ctx context.Context, layer string, mp models.MapParams, frameTime time.Time) ([]byte, error) {
	f.mu.Lock()
	f.radarCalls++
	f.mu.Unlock()
	return f.testPNGSized(mp, color.RGBA{200, 0, 0, 255}), nil
}

func (f *fakeTiles) GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error) {
	f.mu.Lock()
	f.basemapCalls++
	f.mu.Unlock()
	return f.testPNGSized(mp, color.RGBA{0, 0, 200, 255}), nil
}

func (f *fakeTiles) GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error) {
	f.mu.Lock()
	f.legendCalls++
	f.mu.Unlock()
	return testPNG(f.t, 20, 40, color.RGBA{0, 200, 0, 255}), nil
}

func (f *fakeTiles) testPNGSized(mp models.MapParams, c color.Color) []byte {
	return testPNG(f.t, mp.Width, mp.Height, c)
}

func (f *fakeTiles) counts() (resolve, radarMaps, basemaps, legends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.radarCalls, f.basemapCalls, f.legendCalls
}

func testOptions() radar.SessionOptions {
	return radar.SessionOptions{
		Lat:      43.9639,
		Lon:      -79.5736,
		RadiusKm: 200,
		Precip:   models.PrecipRain,
		Width:    200,
		Height:   200,
	}
}

func newTestService(t *testing.T, tiles *fakeTiles, opts Options) *RadarService {
	t.Helper()
	assembler := radar.NewAssembler(tiles, tiles, radar.NewCompositor(nil), 10*time.Minute, 3, nil)
	return NewRadarService(tiles, cache.NewInMemoryCache(), assembler, opts, nil)
}

func defaultInterval() models.TimeInterval {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return models.TimeInterval{Start: start, End: start.Add(20 * time.Minute)}
}

func TestLatest(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval()}
	svc := newTestService(t, tiles, Options{RasterTTL: time.Minute})

	frame, ts, err := svc.Latest(context.Background(), testOptions())
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if !ts.Equal(defaultInterval().End) {
		t.Errorf("timestamp = %v, want %v", ts, defaultInterval().End)
	}
	if _, err := png.Decode(bytes.NewReader(frame)); err != nil {
		t.Errorf("frame is not a decodable PNG: %v", err)
	}

	_, radarMaps, _, _ := tiles.counts()
	if radarMaps != 1 {
		t.Errorf("radar fetches = %d, want 1 for latest frame", radarMaps)
	}
}

func TestLoop(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval()}
	svc := newTestService(t, tiles, Options{RasterTTL: time.Minute})

	anim, err := svc.Loop(context.Background(), testOptions())
	if err != nil {
		t.Fatalf("Loop returned error: %v", err)
	}
	if !anim.LastFrame.Equal(defaultInterval().End) {
		t.Errorf("last frame = %v, want %v", anim.LastFrame, defaultInterval().End)
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(anim.GIF))
	if err != nil {
		t.Fatalf("animation is not a decodable GIF: %v", err)
	}
	// 3 real frames for a 20 minute span at 10 minute cadence, plus 3 pads.
	if len(decoded.Image) != 6 {
		t.Errorf("gif has %d frames, want 6", len(decoded.Image))
	}

	_, radarMaps, _, _ := tiles.counts()
	if radarMaps != 3 {
		t.Errorf("radar fetches = %d, want 3 (pads are duplicates, not fetches)", radarMaps)
	}
}

func TestStaticRastersCachedAcrossRequests(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval()}
	svc := newTestService(t, tiles, Options{RasterTTL: time.Minute})

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Latest(context.Background(), testOptions()); err != nil {
			t.Fatalf("Latest returned error: %v", err)
		}
	}

	_, radarMaps, basemaps, legends := tiles.counts()
	if basemaps != 1 {
		t.Errorf("basemap fetches = %d, want 1 with warm cache", basemaps)
	}
	if legends != 1 {
		t.Errorf("legend fetches = %d, want 1 with warm cache", legends)
	}
	// Radar tiles are never cached.
	if radarMaps != 3 {
		t.Errorf("radar fetches = %d, want one per request", radarMaps)
	}
}

func TestLoopCoalescesConcurrentRequests(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval(), resolveDelay: 80 * time.Millisecond}
	svc := newTestService(t, tiles, Options{
		RasterTTL:       time.Minute,
		CoalesceEnabled: true,
		CoalesceTimeout: 5 * time.Second,
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stagger slightly so the second call joins the in-flight run.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			_, errs[i] = svc.Loop(context.Background(), testOptions())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Loop %d returned error: %v", i, err)
		}
	}
	resolve, _, _, _ := tiles.counts()
	if resolve != 1 {
		t.Errorf("time range resolutions = %d, want 1 coalesced run", resolve)
	}
}

func TestPrimeStation(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval()}
	svc := newTestService(t, tiles, Options{RasterTTL: time.Minute})

	if err := svc.PrimeStation(context.Background(), "CASKR"); err != nil {
		t.Fatalf("PrimeStation returned error: %v", err)
	}
	_, radarMaps, basemaps, legends := tiles.counts()
	if basemaps != 1 || legends != 1 {
		t.Errorf("static fetches = %d basemap, %d legend; want 1 each", basemaps, legends)
	}
	if radarMaps != 0 {
		t.Errorf("radar fetches = %d, want none during priming", radarMaps)
	}
}

func TestPrimeStationUnknown(t *testing.T) {
	tiles := &fakeTiles{t: t, interval: defaultInterval()}
	svc := newTestService(t, tiles, Options{RasterTTL: time.Minute})

	err := svc.PrimeStation(context.Background(), "XXXXX")
	if !errors.Is(err, geo.ErrUnknownStation) {
		t.Errorf("error = %v, want ErrUnknownStation", err)
	}
}
