package wms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
)

// Request timestamps are truncated to the whole minute with zero seconds,
// matching the geomet layer time grid.
const frameTimeFormat = "2006-01-02T15:04:00Z"

var (
	// ErrFetch covers transport failures and non-success statuses for any
	// capabilities, tile, basemap or legend request.
	ErrFetch = errors.New("wms fetch failed")

	// ErrResolution covers a missing layer, malformed dimension text, or an
	// unreachable capability document.
	ErrResolution = errors.New("time dimension resolution failed")
)

// TileClient retrieves rasters and capability documents from the radar
// and basemap WMS endpoints. Methods are safe for concurrent use; the
// animation path issues all per-frame GetRadarMap calls at once.
type TileClient interface {
	GetCapabilities(ctx context.Context, layer string) ([]byte, error)
	GetRadarMap(ctx context.Context, layer string, mp models.MapParams, frameTime time.Time) ([]byte, error)
	GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error)
	GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error)
	ResolveTimeRange(ctx context.Context, layer string) (models.TimeInterval, error)
}

// Client is the geomet/geogratis implementation of TileClient.
type Client struct {
	geometURL    string
	basemapURL   string
	basemapLayer string
	client       *http.Client
}

// NewClient builds a Client for the given endpoints. timeout bounds each
// individual request; there are no retries.
func NewClient(geometURL, basemapURL, basemapLayer string, timeout time.Duration) (*Client, error) {
	if geometURL == "" {
		return nil, fmt.Errorf("geomet URL is required")
	}
	if basemapURL == "" {
		return nil, fmt.Errorf("basemap URL is required")
	}
	if basemapLayer == "" {
		basemapLayer = "CBMT"
	}
	return &Client{
		geometURL:    geometURL,
		basemapURL:   basemapURL,
		basemapLayer: basemapLayer,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

// GetCapabilities fetches the WMS capability document for the layer.
func (c *Client) GetCapabilities(ctx context.Context, layer string) ([]byte, error) {
	params := url.Values{}
	params.Set("lang", "en")
	params.Set("service", "WMS")
	params.Set("version", "1.3.0")
	params.Set("request", "GetCapabilities")
	params.Set("layer", layer)
	return c.doGet(ctx, c.geometURL, params, "capabilities")
}

// GetRadarMap fetches the radar raster for one frame timestamp.
func (c *Client) GetRadarMap(ctx context.Context, layer string, mp models.MapParams, frameTime time.Time) ([]byte, error) {
	params := mapParams(mp)
	params.Set("service", "WMS")
	params.Set("version", "1.3.0")
	params.Set("request", "GetMap")
	params.Set("crs", "EPSG:4326")
	params.Set("format", "image/png")
	params.Set("layers", layer)
	params.Set("time", frameTime.UTC().Format(frameTimeFormat))
	return c.doGet(ctx, c.geometURL, params, "radar")
}

// GetBasemap fetches the static basemap raster for the session geometry.
func (c *Client) GetBasemap(ctx context.Context, mp models.MapParams) ([]byte, error) {
	params := mapParams(mp)
	params.Set("service", "wms")
	params.Set("version", "1.3.0")
	params.Set("request", "GetMap")
	params.Set("layers", c.basemapLayer)
	params.Set("styles", "")
	params.Set("CRS", "epsg:4326")
	params.Set("format", "image/png")
	return c.doGet(ctx, c.basemapURL, params, "basemap")
}

// GetLegendGraphic fetches the legend raster for a layer and style.
func (c *Client) GetLegendGraphic(ctx context.Context, layer, style string) ([]byte, error) {
	params := url.Values{}
	params.Set("service", "WMS")
	params.Set("version", "1.3.0")
	params.Set("request", "GetLegendGraphic")
	params.Set("sld_version", "1.1.0")
	params.Set("format", "image/png")
	params.Set("layer", layer)
	params.Set("style", style)
	return c.doGet(ctx, c.geometURL, params, "legend")
}

func mapParams(mp models.MapParams) url.Values {
	params := url.Values{}
	params.Set("bbox", mp.BBox.String())
	params.Set("width", strconv.Itoa(mp.Width))
	params.Set("height", strconv.Itoa(mp.Height))
	return params
}

// doGet issues a single GET and returns the response body. kind is the
// stable label used for metrics (capabilities, radar, basemap, legend).
func (c *Client) doGet(ctx context.Context, baseURL string, params url.Values, kind string) ([]byte, error) {
	start := time.Now()

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", ErrFetch, baseURL, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordWMSRequest(kind, "error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: request timeout: %v", ErrFetch, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	observability.RecordWMSRequest(kind, statusLabel(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d for %s request", ErrFetch, resp.StatusCode, kind)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrFetch, err)
	}
	return body, nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
