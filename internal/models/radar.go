package models

import (
	"fmt"
	"strings"
	"time"
)

// PrecipKind selects which radar product and legend style to request.
type PrecipKind string

const (
	PrecipRain PrecipKind = "rain"
	PrecipSnow PrecipKind = "snow"
)

// Geomet layer identifiers per precipitation kind.
var radarLayers = map[PrecipKind]string{
	PrecipRain: "RADAR_1KM_RRAI",
	PrecipSnow: "RADAR_1KM_RSNO",
}

// Legend styles per precipitation kind.
var legendStyles = map[PrecipKind]string{
	PrecipRain: "RADARURPPRECIPR",
	PrecipSnow: "RADARURPPRECIPS14",
}

// ParsePrecipKind parses a user-supplied precipitation kind. Empty input
// is not accepted here; callers resolve the seasonal default first.
func ParsePrecipKind(s string) (PrecipKind, error) {
	switch PrecipKind(strings.ToLower(strings.TrimSpace(s))) {
	case PrecipRain:
		return PrecipRain, nil
	case PrecipSnow:
		return PrecipSnow, nil
	}
	return "", fmt.Errorf("unknown precipitation kind %q", s)
}

// DefaultPrecipKind returns the seasonal default: rain April through
// October, snow otherwise. The month is passed in explicitly so session
// construction never reads the ambient clock.
func DefaultPrecipKind(month time.Month) PrecipKind {
	if month >= time.April && month <= time.October {
		return PrecipRain
	}
	return PrecipSnow
}

// Layer returns the geomet radar layer for the kind.
func (p PrecipKind) Layer() string { return radarLayers[p] }

// LegendStyle returns the legend style for the kind.
func (p PrecipKind) LegendStyle() string { return legendStyles[p] }

// Title returns the label prefix used on composite frames ("Rain", "Snow").
func (p PrecipKind) Title() string {
	if len(p) == 0 {
		return ""
	}
	return strings.ToUpper(string(p[0])) + string(p[1:])
}

// BoundingBox is a geographic extent in decimal degrees.
type BoundingBox struct {
	LatMin float64
	LonMin float64
	LatMax float64
	LonMax float64
}

// String renders the box in WMS bbox parameter order: latMin,lonMin,latMax,lonMax.
func (b BoundingBox) String() string {
	return fmt.Sprintf("%v,%v,%v,%v", b.LatMin, b.LonMin, b.LatMax, b.LonMax)
}

// MapParams is the shared geometry of every GetMap request in a session.
type MapParams struct {
	BBox   BoundingBox
	Width  int
	Height int
}

// TimeInterval is the published data range for a layer, resolved fresh
// for every request; never cached.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// CompositeFrame is one fully rendered still image, PNG-encoded.
type CompositeFrame []byte

// Animation is an assembled loop plus the timestamp of the most recent
// real frame it contains.
type Animation struct {
	GIF       []byte
	LastFrame time.Time
}
