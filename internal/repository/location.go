package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

// LocationRepo stores the append-only ping log.
type LocationRepo struct{ db *pgxpool.Pool }

// NewLocationRepo creates a new LocationRepo.
func NewLocationRepo(db *pgxpool.Pool) *LocationRepo { return &LocationRepo{db: db} }

// AppendPing inserts a ping and fills its ID.
func (r *LocationRepo) AppendPing(ctx context.Context, p *domain.LocationPing) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO location_pings (driver_id, lat, lng, speed_kmh, heading, accuracy_m, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `, p.DriverID, p.Position.Lat, p.Position.Lng, p.SpeedKmh, p.Heading, p.AccuracyM, p.RecordedAt).Scan(&p.ID)
	if err != nil {
		if IsForeignKey(err) {
			return fmt.Errorf("driver %d: %w", p.DriverID, apperr.ErrNotFound)
		}
		return fmt.Errorf("append ping for driver %d: %w", p.DriverID, err)
	}
	return nil
}

// LatestPing returns the most recent ping of a driver, or nil.
func (r *LocationRepo) LatestPing(ctx context.Context, driverID int64) (*domain.LocationPing, error) {
	var p domain.LocationPing
	err := r.db.QueryRow(ctx, `
        SELECT id, driver_id, lat, lng, speed_kmh, heading, accuracy_m, recorded_at
        FROM location_pings
        WHERE driver_id = $1
        ORDER BY recorded_at DESC, id DESC
        LIMIT 1
    `, driverID).Scan(&p.ID, &p.DriverID, &p.Position.Lat, &p.Position.Lng, &p.SpeedKmh, &p.Heading,
		&p.AccuracyM, &p.RecordedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest ping of driver %d: %w", driverID, err)
	}
	return &p, nil
}
