package tracking

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/realtime"
)

type pingStore interface {
	AppendPing(ctx context.Context, p *domain.LocationPing) error
}

type driverStore interface {
	Get(ctx context.Context, id int64) (*domain.Driver, error)
	UpdatePosition(ctx context.Context, id int64, p domain.Point, at time.Time) (bool, error)
}

type assignmentReader interface {
	GetActiveByDriver(ctx context.Context, driverID int64) (*domain.Assignment, error)
	GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error)
}

type orderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

type etaEngine interface {
	Compute(ctx context.Context, orderID string, origin, destination domain.Point, mode domain.TravelMode) domain.ETA
	Last(orderID string) (domain.ETA, bool)
	Forget(orderID string)
}

type emitter interface {
	Emit(ctx context.Context, topic realtime.Topic, kind realtime.Kind, payload any)
}
