package models

import (
	"math"
	"time"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid rejects NaN/Inf and out-of-range values.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// LocationSource records how a reading was obtained.
type LocationSource string

const (
	SourceGPS     LocationSource = "gps"
	SourceNetwork LocationSource = "network"
	SourceManual  LocationSource = "manual"
)

// LocationReading is a donor position at a point in time.
type LocationReading struct {
	Coordinates Coordinates    `json:"coordinates"`
	RecordedAt  time.Time      `json:"recorded_at"`
	AccuracyM   float64        `json:"accuracy_m"`
	Source      LocationSource `json:"source"`
}

// IsStale reports whether the reading is older than threshold at now.
// A zero threshold disables staleness.
func (r LocationReading) IsStale(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(r.RecordedAt) > threshold
}
