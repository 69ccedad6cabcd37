package handlers

import (
	"context"

	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/service/dispatch"
	"courier-dispatch/internal/service/order"
	"courier-dispatch/internal/service/tracking"
)

type orderUsecase interface {
	CreateOrder(ctx context.Context, n dispatch.NewOrder) (*domain.Order, dispatch.Result, error)
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID, actor string) (order.CancelResult, error)
	ApplyStoreStatus(ctx context.Context, orderID string, to domain.OrderStatus) (order.StoreResult, error)
	ManualDispatch(ctx context.Context, orderID string) (dispatch.Result, error)
}

type assignmentUsecase interface {
	DriverAction(ctx context.Context, assignmentID int64, to domain.AssignmentStatus) (domain.TransitionResult, error)
}

type driverUsecase interface {
	Create(ctx context.Context, d *domain.Driver) error
	Get(ctx context.Context, id int64) (*domain.Driver, error)
	List(ctx context.Context) ([]domain.Driver, error)
	SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error)
}

type trackingUsecase interface {
	Ingest(ctx context.Context, p domain.LocationPing) (tracking.IngestResult, error)
	Position(ctx context.Context, driverID int64) (*cache.Position, error)
	CurrentETA(ctx context.Context, orderID string) (domain.ETA, error)
}

type timelineUsecase interface {
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}
