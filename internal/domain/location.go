package domain

import "time"

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are inside the WGS84 ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// LocationPing is a single position report pushed by a driver device.
// Pings are append-only; the latest one per driver is the current position.
type LocationPing struct {
	ID         int64
	DriverID   int64
	Position   Point
	SpeedKmh   *float64
	Heading    *float64
	AccuracyM  float64
	RecordedAt time.Time
}
