package radar

import (
	"context"
	"errors"

	"github.com/mfortin/radar-loop-service/internal/geo"
	"github.com/mfortin/radar-loop-service/internal/wms"
)

var (
	// ErrComposition is returned when a fetched raster cannot be decoded or
	// drawn. The compositor never continues with a partial canvas.
	ErrComposition = errors.New("frame composition failed")

	// ErrScheduling is reserved for callers that reject a degenerate time
	// interval outright. The scheduler itself falls back to a single frame.
	ErrScheduling = errors.New("degenerate time interval")
)

// StageLabel maps a pipeline error to the stable stage label used in
// metrics and error responses. Any stage failure aborts the whole run, so
// one label per run is enough.
func StageLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, wms.ErrResolution):
		return "resolve"
	case errors.Is(err, ErrScheduling):
		return "schedule"
	case errors.Is(err, wms.ErrFetch):
		return "fetch"
	case errors.Is(err, ErrComposition):
		return "compose"
	case errors.Is(err, geo.ErrOutOfDomain):
		return "geo"
	case errors.Is(err, geo.ErrUnknownStation):
		return "station"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "unknown"
	}
}
