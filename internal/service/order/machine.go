// Package order runs the customer-facing order lifecycle: store-side
// progress and cancellation with its cascade onto the active assignment.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/ports/dispatchtx"
)

// CancelResult reports what a cancellation changed.
type CancelResult struct {
	Order domain.Order
	// Assignment is the superseded assignment, if one was active.
	Assignment  *domain.Assignment
	Changed     bool
	DriverFreed bool
}

// StoreResult reports what a store-side update changed.
type StoreResult struct {
	Order   domain.Order
	Changed bool
}

// Machine is the order state machine.
type Machine struct {
	repo             dispatchtx.Runner
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
}

// NewMachine creates an order Machine.
func NewMachine(repo dispatchtx.Runner, timeout time.Duration, logger logx.Logger) *Machine {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Machine{
		repo:             repo,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (m *Machine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.operationTimeout)
}

// IsStoreStatus reports whether a store may set the order to s.
func IsStoreStatus(s domain.OrderStatus) bool {
	switch s {
	case domain.OrderConfirmed, domain.OrderPreparing, domain.OrderReady:
		return true
	default:
		return false
	}
}

// ApplyStoreStatus moves the order forward to a store-side status. Updates
// that arrive after the order already got there are no-ops.
func (m *Machine) ApplyStoreStatus(ctx context.Context, orderID string, to domain.OrderStatus) (StoreResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || !IsStoreStatus(to) {
		return StoreResult{}, apperr.ErrInvalid
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		res  StoreResult
		from domain.OrderStatus
	)
	err := m.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
		}
		from = o.Status
		moved, err := Advance(ctx, tx, o, to, domain.ActorStore, m.now())
		if err != nil {
			return err
		}
		res = StoreResult{Order: *o, Changed: moved}
		return nil
	})
	if err != nil {
		return StoreResult{}, err
	}

	if res.Changed {
		m.logger.Info("order transition",
			logx.String("event", "order_transition"),
			logx.String("order_id", orderID),
			logx.String("from", string(from)),
			logx.String("to", string(res.Order.Status)),
			logx.String("actor", domain.ActorStore),
		)
	}
	return res, nil
}

// Cancel cancels a non-terminal order. An active assignment is superseded and
// its driver released in the same transaction. Cancelling an order that is
// already terminal is a no-op.
func (m *Machine) Cancel(ctx context.Context, orderID, actor string) (CancelResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return CancelResult{}, apperr.ErrInvalid
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		res  CancelResult
		from domain.OrderStatus
	)
	err := m.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
		}
		from = o.Status
		if o.Status.Terminal() {
			res = CancelResult{Order: *o}
			return nil
		}

		now := m.now()
		if err := Transition(ctx, tx, o, domain.OrderCancelled, actor, now); err != nil {
			return err
		}
		res = CancelResult{Order: *o, Changed: true}

		a, err := tx.GetActiveAssignmentByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}
		freed, err := supersede(ctx, tx, a, actor, now)
		if err != nil {
			return err
		}
		res.Assignment = a
		res.DriverFreed = freed
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	if !res.Changed {
		m.logger.Info("cancel ignored, order already final",
			logx.String("event", "order_cancel_noop"),
			logx.String("order_id", orderID),
			logx.String("status", string(from)),
		)
		return res, nil
	}
	fields := []logx.Field{
		logx.String("event", "order_transition"),
		logx.String("order_id", orderID),
		logx.String("from", string(from)),
		logx.String("to", string(domain.OrderCancelled)),
		logx.String("actor", actor),
	}
	if res.Assignment != nil {
		fields = append(fields,
			logx.Int64("assignment_id", res.Assignment.ID),
			logx.Int64("driver_id", res.Assignment.DriverID),
			logx.Bool("driver_freed", res.DriverFreed),
		)
	}
	m.logger.Info("order cancelled", fields...)
	return res, nil
}

func supersede(ctx context.Context, tx dispatchtx.Repository, a *domain.Assignment, actor string, at time.Time) (bool, error) {
	if err := domain.ValidateAssignmentTransition(a.Status, domain.AssignmentSuperseded); err != nil {
		return false, err
	}
	ok, err := tx.UpdateAssignmentStatus(ctx, a.ID, a.Version, domain.AssignmentSuperseded, at)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("assignment %d changed concurrently: %w", a.ID, apperr.ErrConflict)
	}
	if err := tx.AppendEvent(ctx, &domain.StatusEvent{
		OrderID:    a.OrderID,
		Entity:     domain.EntityAssignment,
		EntityID:   a.EntityID(),
		FromStatus: string(a.Status),
		ToStatus:   string(domain.AssignmentSuperseded),
		Actor:      actor,
		CreatedAt:  at,
	}); err != nil {
		return false, err
	}
	a.Status = domain.AssignmentSuperseded
	a.Version++
	a.UpdatedAt = at
	a.FinishedAt = &at
	return tx.ReleaseDriver(ctx, a.DriverID, at)
}
