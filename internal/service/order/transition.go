package order

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/ports/dispatchtx"
)

var forwardPath = []domain.OrderStatus{
	domain.OrderPending,
	domain.OrderConfirmed,
	domain.OrderPreparing,
	domain.OrderReady,
	domain.OrderOutForDelivery,
	domain.OrderDelivered,
}

// Transition applies one table transition to o inside tx and records it.
// o is updated in place on success.
func Transition(
	ctx context.Context, tx dispatchtx.Repository, o *domain.Order, to domain.OrderStatus, actor string, at time.Time,
) error {
	if err := domain.ValidateOrderTransition(o.Status, to); err != nil {
		return err
	}
	ok, err := tx.UpdateOrderStatus(ctx, o.ID, o.Version, to, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %q changed concurrently: %w", o.ID, apperr.ErrConflict)
	}
	if err := tx.AppendEvent(ctx, &domain.StatusEvent{
		OrderID:    o.ID,
		Entity:     domain.EntityOrder,
		EntityID:   o.ID,
		FromStatus: string(o.Status),
		ToStatus:   string(to),
		Actor:      actor,
		CreatedAt:  at,
	}); err != nil {
		return err
	}
	o.Status = to
	o.Version++
	o.UpdatedAt = at
	return nil
}

// Advance moves o forward until it reaches target, taking the longest legal
// step each time. Orders that already reached target, or are terminal, are
// left alone and false is returned.
func Advance(
	ctx context.Context, tx dispatchtx.Repository, o *domain.Order, target domain.OrderStatus, actor string, at time.Time,
) (bool, error) {
	moved := false
	for !o.Status.Terminal() && !o.Status.Reached(target) {
		next, ok := nextToward(o.Status, target)
		if !ok {
			return moved, domain.ValidateOrderTransition(o.Status, target)
		}
		if err := Transition(ctx, tx, o, next, actor, at); err != nil {
			return moved, err
		}
		moved = true
	}
	return moved, nil
}

func nextToward(from, target domain.OrderStatus) (domain.OrderStatus, bool) {
	for i := len(forwardPath) - 1; i >= 0; i-- {
		s := forwardPath[i]
		if target.Reached(s) && domain.ValidateOrderTransition(from, s) == nil {
			return s, true
		}
	}
	return "", false
}
