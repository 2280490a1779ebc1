package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/mfortin/radar-loop-service/internal/models"
)

// Mean Earth radius in kilometres.
const earthRadiusKm = 6371.01

// ErrOutOfDomain is returned when the requested radius pushes the
// longitude-delta computation outside the valid asin domain.
var ErrOutOfDomain = errors.New("bounding box outside trigonometric domain")

// BoundingBox computes the box of the given radius centred on the given
// point, using the small-circle approximation: latitude bounds are
// lat ± angular distance, and the longitude delta is
// asin(sin(angularDistance) / cos(lat)). All bounds are rounded to five
// decimal places.
//
// The approximation is undefined near the poles (cos(lat) approaches
// zero): a radius that is large relative to the latitude pushes the asin
// argument outside [-1, 1], and that case returns ErrOutOfDomain rather
// than NaN bounds. Callers working above roughly 85° latitude should not
// rely on this function.
func BoundingBox(radiusKm, latDeg, lonDeg float64) (models.BoundingBox, error) {
	if radiusKm < 0 {
		return models.BoundingBox{}, fmt.Errorf("%w: negative radius %v", ErrOutOfDomain, radiusKm)
	}

	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180

	angular := radiusKm / earthRadiusKm

	sinRatio := math.Sin(angular) / math.Cos(lat)
	if sinRatio < -1 || sinRatio > 1 || math.IsNaN(sinRatio) {
		return models.BoundingBox{}, fmt.Errorf("%w: radius %vkm at latitude %v°", ErrOutOfDomain, radiusKm, latDeg)
	}
	deltaLon := math.Asin(sinRatio)

	return models.BoundingBox{
		LatMin: round5((lat - angular) * 180 / math.Pi),
		LonMin: round5((lon - deltaLon) * 180 / math.Pi),
		LatMax: round5((lat + angular) * 180 / math.Pi),
		LonMax: round5((lon + deltaLon) * 180 / math.Pi),
	}, nil
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
