// Package cache keeps the current position of every driver close at hand.
package cache

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
)

// Position is the cached current position of a driver.
type Position struct {
	DriverID   int64        `json:"driver_id"`
	Point      domain.Point `json:"point"`
	SpeedKmh   *float64     `json:"speed_kmh,omitempty"`
	Heading    *float64     `json:"heading,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// PositionCache stores the latest position per driver.
type PositionCache interface {
	// Set stores p unless a newer position is already cached.
	Set(ctx context.Context, p Position) error
	// Get returns nil when nothing is cached for the driver.
	Get(ctx context.Context, driverID int64) (*Position, error)
}
