// Package assignment runs the driver-side assignment lifecycle and keeps the
// order in lockstep with it.
package assignment

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/ports/dispatchtx"
	"courier-dispatch/internal/service/order"
)

// Machine is the assignment state machine.
type Machine struct {
	repo             dispatchtx.Runner
	assignments      assignmentReader
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
}

// NewMachine creates an assignment Machine.
func NewMachine(repo dispatchtx.Runner, assignments assignmentReader, timeout time.Duration, logger logx.Logger) *Machine {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Machine{
		repo:             repo,
		assignments:      assignments,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (m *Machine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.operationTimeout)
}

// Transition moves an assignment to the requested status.
//
// A terminal target releases the driver; delivery also bumps the driver's
// delivery count. Accept, pick-up and delivery drag the order forward.
// Requests against an assignment that already reached the target or another
// terminal status are no-ops reported with Changed=false.
func (m *Machine) Transition(ctx context.Context, id int64, to domain.AssignmentStatus, actor string) (domain.TransitionResult, error) {
	return m.transition(ctx, id, to, actor, false)
}

// Expire rejects an offer the driver left unanswered. An offer the driver
// already accepted, or that moved on in any other way, is left alone and
// reported with Changed=false.
func (m *Machine) Expire(ctx context.Context, id int64) (domain.TransitionResult, error) {
	return m.transition(ctx, id, domain.AssignmentRejected, domain.ActorSystem, true)
}

func (m *Machine) transition(ctx context.Context, id int64, to domain.AssignmentStatus, actor string, offeredOnly bool) (domain.TransitionResult, error) {
	if id <= 0 || !to.Valid() || to == domain.AssignmentOffered {
		return domain.TransitionResult{}, apperr.ErrInvalid
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	current, err := m.assignments.Get(ctx, id)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	if current == nil {
		return domain.TransitionResult{}, fmt.Errorf("assignment %d: %w", id, apperr.ErrNotFound)
	}

	var (
		res  domain.TransitionResult
		from domain.AssignmentStatus
	)
	err = m.repo.WithTx(ctx, func(tx dispatchtx.Repository) error {
		// order first, then assignment, then driver
		o, err := tx.GetOrder(ctx, current.OrderID)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %q: %w", current.OrderID, apperr.ErrNotFound)
		}
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("assignment %d: %w", id, apperr.ErrNotFound)
		}
		from = a.Status
		res = domain.TransitionResult{Assignment: *a, Order: *o}
		if a.Status == to || a.Status.Terminal() {
			return nil
		}
		if offeredOnly && a.Status != domain.AssignmentOffered {
			return nil
		}
		if err := domain.ValidateAssignmentTransition(a.Status, to); err != nil {
			return err
		}

		now := m.now()
		ok, err := tx.UpdateAssignmentStatus(ctx, a.ID, a.Version, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("assignment %d changed concurrently: %w", a.ID, apperr.ErrConflict)
		}
		if err := tx.AppendEvent(ctx, &domain.StatusEvent{
			OrderID:    a.OrderID,
			Entity:     domain.EntityAssignment,
			EntityID:   a.EntityID(),
			FromStatus: string(a.Status),
			ToStatus:   string(to),
			Actor:      actor,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		res.Changed = true

		if to.Terminal() {
			freed, err := tx.ReleaseDriver(ctx, a.DriverID, now)
			if err != nil {
				return err
			}
			res.DriverFreed = freed
			if to == domain.AssignmentDelivered {
				if err := tx.IncrementDeliveries(ctx, a.DriverID); err != nil {
					return err
				}
			}
		}

		if target, ok := domain.OrderStatusFor(to); ok {
			moved, err := order.Advance(ctx, tx, o, target, actor, now)
			if err != nil {
				return err
			}
			res.OrderMoved = moved
		}

		updated, err := tx.GetAssignment(ctx, a.ID)
		if err != nil {
			return err
		}
		if updated != nil {
			res.Assignment = *updated
		}
		res.Order = *o
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}

	if !res.Changed {
		m.logger.Info("assignment transition ignored",
			logx.String("event", "assignment_transition_noop"),
			logx.Int64("assignment_id", id),
			logx.String("status", string(from)),
			logx.String("requested", string(to)),
			logx.String("actor", actor),
		)
		return res, nil
	}
	m.logger.Info("assignment transition",
		logx.String("event", "assignment_transition"),
		logx.Int64("assignment_id", id),
		logx.String("order_id", res.Assignment.OrderID),
		logx.Int64("driver_id", res.Assignment.DriverID),
		logx.String("from", string(from)),
		logx.String("to", string(to)),
		logx.String("actor", actor),
		logx.Bool("driver_freed", res.DriverFreed),
		logx.String("order_status", string(res.Order.Status)),
	)
	return res, nil
}
