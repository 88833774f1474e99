// Package location holds the fixed set of locations tempcast can forecast for.
package location

import (
	"errors"
	"sort"
)

// ErrInvalidLocation is returned for names outside the supported set.
var ErrInvalidLocation = errors.New("invalid location")

// Location is the canonical name of a supported location, e.g. "Moscow".
type Location string

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// catalog maps every supported location to its coordinates.
var catalog = map[Location]Coordinates{
	"Moscow":         {Lat: 55.7558, Lon: 37.6173},
	"New-York":       {Lat: 40.7128, Lon: -74.0060},
	"Washington":     {Lat: 38.9072, Lon: -77.0369},
	"London":         {Lat: 51.5074, Lon: -0.1278},
	"Tokyo":          {Lat: 35.6762, Lon: 139.6503},
	"Paris":          {Lat: 48.8566, Lon: 2.3522},
	"Sydney":         {Lat: -33.8688, Lon: 151.2093},
	"Berlin":         {Lat: 52.5200, Lon: 13.4050},
	"Rio-de-Janeiro": {Lat: -22.9068, Lon: -43.1729},
	"Cape-Town":      {Lat: -33.9249, Lon: 18.4241},
	"Delhi":          {Lat: 28.6139, Lon: 77.2090},
}

// Parse validates name and returns it as a Location.
func Parse(name string) (Location, error) {
	loc := Location(name)
	if err := loc.Validate(); err != nil {
		return "", err
	}
	return loc, nil
}

// Validate reports ErrInvalidLocation if l is not a supported location.
func (l Location) Validate() error {
	if _, ok := catalog[l]; !ok {
		return ErrInvalidLocation
	}
	return nil
}

// Coordinates returns the coordinates of l.
func (l Location) Coordinates() (Coordinates, error) {
	c, ok := catalog[l]
	if !ok {
		return Coordinates{}, ErrInvalidLocation
	}
	return c, nil
}

func (l Location) String() string {
	return string(l)
}

// Entry pairs a location with its coordinates.
type Entry struct {
	Location    Location
	Coordinates Coordinates
}

// All returns every supported location sorted by name.
func All() []Entry {
	entries := make([]Entry, 0, len(catalog))
	for loc, c := range catalog {
		entries = append(entries, Entry{Location: loc, Coordinates: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Location < entries[j].Location
	})
	return entries
}

// Names returns the names of all supported locations, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, e := range all {
		names[i] = string(e.Location)
	}
	return names
}
