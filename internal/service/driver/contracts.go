package driver

import (
	"context"

	"courier-dispatch/internal/domain"
)

// driverRepository defines storage operations required by the registry.
type driverRepository interface {
	Get(ctx context.Context, id int64) (*domain.Driver, error)
	List(ctx context.Context) ([]domain.Driver, error)
	Create(ctx context.Context, d *domain.Driver) error
	SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error)
}

// availabilityListener is told when a driver rejoins the pool.
type availabilityListener interface {
	OnDriverAvailable(ctx context.Context, driverID int64)
}
