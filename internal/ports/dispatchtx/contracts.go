package dispatchtx

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
)

// Repository is the set of writes that must commit together when an
// assignment or order changes state.
type Repository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// UpdateOrderStatus moves the order only if its version still matches.
	UpdateOrderStatus(ctx context.Context, id string, version int, to domain.OrderStatus, at time.Time) (bool, error)

	GetDriver(ctx context.Context, id int64) (*domain.Driver, error)
	// ClaimDriver flips available to false only if the driver is active,
	// available and not paused. A false result means another claim won.
	ClaimDriver(ctx context.Context, id int64, at time.Time) (bool, error)
	// ReleaseDriver flips available back to true unless the driver is
	// inactive or paused.
	ReleaseDriver(ctx context.Context, id int64, at time.Time) (bool, error)
	IncrementDeliveries(ctx context.Context, id int64) error

	GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error)
	// GetActiveAssignmentByOrder returns nil when the order has no
	// non-terminal assignment.
	GetActiveAssignmentByOrder(ctx context.Context, orderID string) (*domain.Assignment, error)
	InsertAssignment(ctx context.Context, a *domain.Assignment) error
	// UpdateAssignmentStatus moves the assignment only if its version still matches.
	UpdateAssignmentStatus(ctx context.Context, id int64, version int, to domain.AssignmentStatus, at time.Time) (bool, error)

	AppendEvent(ctx context.Context, e *domain.StatusEvent) error
}

// Runner is a transaction runner
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
