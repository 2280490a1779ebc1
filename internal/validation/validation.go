package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// Input bounds for request parameters. Dimensions are capped well below
// anything the upstream WMS would serve quickly; radius is capped before
// the bounding box math becomes meaningless near the poles.
const (
	MinDimension = 64
	MaxDimension = 2048
	MaxRadiusKm  = 1000
)

// ErrStationEmpty is returned when the station ID is empty after trim.
var ErrStationEmpty = errors.New("station ID is required")

// ErrStationInvalid is returned when the station ID has a bad length or characters.
var ErrStationInvalid = errors.New("station ID must be 3 to 8 letters")

// ErrRadiusInvalid is returned when the radius is not a positive number within bounds.
var ErrRadiusInvalid = errors.New("radius must be a positive number of kilometres, at most 1000")

// ErrDimensionsInvalid is returned when width or height is outside the allowed range.
var ErrDimensionsInvalid = errors.New("width and height must be between 64 and 2048 pixels")

// ErrCoordinatesInvalid is returned when lat/lon are absent or outside the valid ranges.
var ErrCoordinatesInvalid = errors.New("lat must be in [-90, 90] and lon in [-180, 180]")

// ValidateStationID trims the input and enforces the radar site code
// shape: 3 to 8 letters. Case normalization is left to the lookup.
func ValidateStationID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrStationEmpty
	}
	r := []rune(s)
	if len(r) < 3 || len(r) > 8 {
		return "", ErrStationInvalid
	}
	for _, c := range r {
		if !unicode.IsLetter(c) {
			return "", ErrStationInvalid
		}
	}
	return s, nil
}

// ValidateRadius parses an optional radius query value. Empty input
// returns fallback.
func ValidateRadius(input string, fallback float64) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return fallback, nil
	}
	radius, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || radius <= 0 || radius > MaxRadiusKm {
		return 0, ErrRadiusInvalid
	}
	return radius, nil
}

// ValidateDimension parses an optional width or height query value.
// Empty input returns fallback.
func ValidateDimension(input string, fallback int) (int, error) {
	if strings.TrimSpace(input) == "" {
		return fallback, nil
	}
	d, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || d < MinDimension || d > MaxDimension {
		return 0, ErrDimensionsInvalid
	}
	return d, nil
}

// ValidateCoordinates parses required lat/lon query values.
func ValidateCoordinates(latInput, lonInput string) (lat, lon float64, err error) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(latInput), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(lonInput), 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, ErrCoordinatesInvalid
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, ErrCoordinatesInvalid
	}
	return lat, lon, nil
}
