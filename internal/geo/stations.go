package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "embed"
)

// ErrUnknownStation is returned when a station identifier is not in the
// embedded site list.
var ErrUnknownStation = errors.New("unknown radar station")

//go:embed radar_sites.json
var radarSitesJSON []byte

type station struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

var (
	stationsOnce sync.Once
	stations     map[string]station
	stationsErr  error
)

func loadStations() {
	stationsOnce.Do(func() {
		stationsErr = json.Unmarshal(radarSitesJSON, &stations)
	})
}

// StationCoords returns the coordinates of a radar station. Identifiers
// are case-insensitive.
func StationCoords(id string) (lat, lon float64, err error) {
	loadStations()
	if stationsErr != nil {
		return 0, 0, fmt.Errorf("load radar sites: %w", stationsErr)
	}
	s, ok := stations[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownStation, id)
	}
	return s.Lat, s.Lon, nil
}

// StationIDs returns all known station identifiers. Used by cache warming.
func StationIDs() []string {
	loadStations()
	if stationsErr != nil {
		return nil
	}
	ids := make([]string, 0, len(stations))
	for id := range stations {
		ids = append(ids, id)
	}
	return ids
}
