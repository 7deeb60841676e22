package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrLocationUnresolved is returned when an intake payload carries no usable
// coordinates. Callers degrade to location-less handling instead of failing.
var ErrLocationUnresolved = errors.New("location could not be resolved")

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the location is the null island placeholder used by
// intake sources that could not geocode the caller.
func (l Location) IsZero() bool { return l.Lat == 0 && l.Lon == 0 }

func (l Location) String() string { return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lon) }

// ParseLocation normalizes the location representations seen in intake
// payloads: a "lat,lon" string, a mapping keyed lat/lon or latitude/longitude,
// a [lat, lon] pair, or an already typed Location.
func ParseLocation(v any) (Location, error) {
	switch loc := v.(type) {
	case Location:
		return loc, nil
	case *Location:
		if loc != nil {
			return *loc, nil
		}
	case string:
		parts := strings.Split(loc, ",")
		if len(parts) == 2 {
			lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if errLat == nil && errLon == nil {
				return Location{Lat: lat, Lon: lon}, nil
			}
		}
	case map[string]any:
		if l, ok := coordsFromMap(loc, "lat", "lon"); ok {
			return l, nil
		}
		if l, ok := coordsFromMap(loc, "latitude", "longitude"); ok {
			return l, nil
		}
	case []any:
		if len(loc) >= 2 {
			lat, okLat := toFloat(loc[0])
			lon, okLon := toFloat(loc[1])
			if okLat && okLon {
				return Location{Lat: lat, Lon: lon}, nil
			}
		}
	}
	return Location{}, ErrLocationUnresolved
}

// ParseLocationJSON resolves a raw JSON location field in any of the accepted
// shapes.
func ParseLocationJSON(raw json.RawMessage) (Location, error) {
	if len(raw) == 0 {
		return Location{}, ErrLocationUnresolved
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Location{}, ErrLocationUnresolved
	}
	return ParseLocation(v)
}

func coordsFromMap(m map[string]any, latKey, lonKey string) (Location, bool) {
	rawLat, okLat := m[latKey]
	rawLon, okLon := m[lonKey]
	if !okLat || !okLon {
		return Location{}, false
	}
	lat, okLat := toFloat(rawLat)
	lon, okLon := toFloat(rawLon)
	if !okLat || !okLon {
		return Location{}, false
	}
	return Location{Lat: lat, Lon: lon}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance between two points in
// kilometers.
func Haversine(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
