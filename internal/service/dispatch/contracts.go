package dispatch

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/notify"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/service/candidate"
	"courier-dispatch/internal/service/order"
)

type orderStore interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	Create(ctx context.Context, o *domain.Order) error
	InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	Delete(ctx context.Context, id string) error
	SetDestination(ctx context.Context, id string, p domain.Point) error
	SetManual(ctx context.Context, id string, manual bool, reason string) error
	ListAwaitingDriver(ctx context.Context, limit int) ([]domain.Order, error)
}

type assignmentStore interface {
	GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Assignment, error)
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]domain.Assignment, error)
}

type driverReader interface {
	Get(ctx context.Context, id int64) (*domain.Driver, error)
}

type geocoder interface {
	Resolve(ctx context.Context, address string) (domain.Point, error)
}

type candidateFilter interface {
	Filter(ctx context.Context, dest domain.Point, p candidate.Policy, exclude []int64) ([]domain.Candidate, error)
}

type driverSelector interface {
	Select(ctx context.Context, orderID string, cands []domain.Candidate) (domain.AssignResult, error)
}

type assignmentMachine interface {
	Transition(ctx context.Context, id int64, to domain.AssignmentStatus, actor string) (domain.TransitionResult, error)
	Expire(ctx context.Context, id int64) (domain.TransitionResult, error)
}

type orderMachine interface {
	ApplyStoreStatus(ctx context.Context, orderID string, to domain.OrderStatus) (order.StoreResult, error)
	Cancel(ctx context.Context, orderID, actor string) (order.CancelResult, error)
}

type tracker interface {
	Seed(orderID string, driverID int64, origin *domain.Point, destination *domain.Point, vehicle domain.VehicleType, at time.Time)
	Forget(orderID string)
}

type timelineBuilder interface {
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

type emitter interface {
	Emit(ctx context.Context, topic realtime.Topic, kind realtime.Kind, payload any)
}

type notifier interface {
	Notify(ctx context.Context, userID string, n notify.Notification) error
}
