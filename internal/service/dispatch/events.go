package dispatch

import (
	"context"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/order"
)

const expiredOffersBatch = 100

// DriverAction applies a driver-initiated assignment transition and runs its
// side effects: stopping the offer timer, re-dispatch after a rejection,
// publication and notifications. A no-op transition has no side effects.
func (d *Dispatcher) DriverAction(ctx context.Context, assignmentID int64, to domain.AssignmentStatus) (domain.TransitionResult, error) {
	res, err := d.Transitions.Transition(ctx, assignmentID, to, domain.ActorDriver)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	if res.Changed {
		d.afterTransition(ctx, res)
	}
	return res, nil
}

func (d *Dispatcher) afterTransition(ctx context.Context, res domain.TransitionResult) {
	a := res.Assignment
	d.offers.stopIf(a.OrderID, a.ID)

	d.publishStatus(ctx, a.OrderID, res.Order.Status, &a)
	d.publishTimeline(ctx, a.OrderID)

	customer := res.Order.CustomerID
	switch a.Status {
	case domain.AssignmentAccepted:
		d.notify(ctx, customer, "Pedido confirmado", "Un repartidor aceptó tu pedido", a.OrderID, a.ID)
	case domain.AssignmentPickedUp:
		d.notify(ctx, customer, "Tu pedido va en camino", "El repartidor recogió tu pedido", a.OrderID, a.ID)
	case domain.AssignmentDelivered:
		d.Tracker.Forget(a.OrderID)
		d.notify(ctx, customer, "Pedido entregado", "¡Buen provecho!", a.OrderID, a.ID)
	case domain.AssignmentRejected:
		d.reassign(ctx, a)
	}

	if res.DriverFreed {
		d.OnDriverAvailable(ctx, a.DriverID)
	}
}

func (d *Dispatcher) reassign(ctx context.Context, rejected domain.Assignment) {
	d.Logger.Info("reassigning order",
		logx.String("event", "dispatch_reassign"),
		logx.String("order_id", rejected.OrderID),
		logx.Int64("rejected_driver_id", rejected.DriverID),
	)
	if _, err := d.Dispatch(ctx, rejected.OrderID); err != nil {
		d.Logger.Error("reassignment failed",
			logx.String("event", "dispatch_failed"),
			logx.String("order_id", rejected.OrderID),
			logx.Err(err),
		)
	}
}

// expireByTimer is the acceptance timer callback.
func (d *Dispatcher) expireByTimer(assignmentID int64) {
	if d.isClosed() {
		return
	}
	ctx, cancel := d.background()
	defer cancel()
	d.expire(ctx, assignmentID)
}

// expire rejects an unanswered offer on behalf of the driver.
func (d *Dispatcher) expire(ctx context.Context, assignmentID int64) bool {
	res, err := d.Transitions.Expire(ctx, assignmentID)
	if err != nil {
		d.Logger.Error("offer expiry failed",
			logx.String("event", "offer_expiry_failed"),
			logx.Int64("assignment_id", assignmentID),
			logx.Err(err),
		)
		return false
	}
	if !res.Changed {
		return false
	}
	d.Logger.Info("offer expired",
		logx.String("event", "offer_expired"),
		logx.Int64("assignment_id", assignmentID),
		logx.String("order_id", res.Assignment.OrderID),
		logx.Int64("driver_id", res.Assignment.DriverID),
	)
	d.notifyDriver(ctx, res.Assignment.DriverID, "Oferta expirada",
		"El pedido fue ofrecido a otro repartidor", res.Assignment.OrderID, assignmentID)
	d.afterTransition(ctx, res)
	return true
}

// ExpireOverdueOffers rejects offers whose deadline passed without a timer
// firing, e.g. after a restart. It returns how many it expired.
func (d *Dispatcher) ExpireOverdueOffers(ctx context.Context) (int, error) {
	lctx, cancel := d.withTimeout(ctx)
	overdue, err := d.Assignments.ListExpiredOffers(lctx, d.now(), expiredOffersBatch)
	cancel()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range overdue {
		if d.expire(ctx, a.ID) {
			n++
		}
	}
	return n, nil
}

// RunSweeper expires overdue offers on every tick until ctx is done.
func (d *Dispatcher) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.ExpireOverdueOffers(ctx)
			if err != nil {
				d.Logger.Error("offer sweep failed",
					logx.String("event", "offer_sweep_failed"),
					logx.Err(err),
				)
				continue
			}
			if n > 0 {
				d.Logger.Info("overdue offers expired",
					logx.String("event", "offer_sweep"),
					logx.Int("expired", n),
				)
			}
		}
	}
}

// CancelOrder cancels an order, superseding its active assignment and
// releasing the driver. Cancelling a finished order is a no-op.
func (d *Dispatcher) CancelOrder(ctx context.Context, orderID, actor string) (order.CancelResult, error) {
	res, err := d.Lifecycle.Cancel(ctx, orderID, actor)
	if err != nil || !res.Changed {
		return res, err
	}

	d.offers.stop(orderID)
	d.resetMisses(orderID)
	d.Tracker.Forget(orderID)

	d.publishStatus(ctx, orderID, res.Order.Status, res.Assignment)
	d.publishTimeline(ctx, orderID)
	d.notify(ctx, res.Order.CustomerID, "Pedido cancelado", "Tu pedido fue cancelado", orderID, 0)

	if res.Assignment != nil {
		d.notifyDriver(ctx, res.Assignment.DriverID, "Pedido cancelado",
			"El pedido que tenías asignado fue cancelado", orderID, res.Assignment.ID)
		if res.DriverFreed {
			d.OnDriverAvailable(ctx, res.Assignment.DriverID)
		}
	}
	return res, nil
}

// ApplyStoreStatus records store-side progress and tells the assigned driver
// when the order is ready for pick-up.
func (d *Dispatcher) ApplyStoreStatus(ctx context.Context, orderID string, to domain.OrderStatus) (order.StoreResult, error) {
	res, err := d.Lifecycle.ApplyStoreStatus(ctx, orderID, to)
	if err != nil || !res.Changed {
		return res, err
	}

	actx, cancel := d.withTimeout(ctx)
	a, err := d.Assignments.GetActiveByOrder(actx, orderID)
	cancel()
	if err != nil {
		d.Logger.Warn("active assignment lookup failed",
			logx.String("event", "assignment_lookup_failed"),
			logx.String("order_id", orderID),
			logx.Err(err),
		)
		a = nil
	}

	d.publishStatus(ctx, orderID, res.Order.Status, a)
	d.publishTimeline(ctx, orderID)
	if a != nil && res.Order.Status == domain.OrderReady {
		d.notifyDriver(ctx, a.DriverID, "Pedido listo", "Puedes pasar a recogerlo", orderID, a.ID)
	}
	return res, nil
}

// OnDriverAvailable offers orders still waiting for a driver. It stops at the
// first order that finds nobody, since the pool is exhausted.
func (d *Dispatcher) OnDriverAvailable(ctx context.Context, driverID int64) {
	lctx, cancel := d.withTimeout(ctx)
	awaiting, err := d.Orders.ListAwaitingDriver(lctx, d.cfg.AwaitingBatch)
	cancel()
	if err != nil {
		d.Logger.Error("list awaiting orders failed",
			logx.String("event", "redispatch_failed"),
			logx.Int64("driver_id", driverID),
			logx.Err(err),
		)
		return
	}

	for i := range awaiting {
		o := awaiting[i]
		r, err := d.dispatch(ctx, &o, modeOpportunistic)
		if err != nil {
			d.Logger.Error("redispatch failed",
				logx.String("event", "redispatch_failed"),
				logx.String("order_id", o.ID),
				logx.Err(err),
			)
			continue
		}
		if r.Outcome == OutcomeUnassigned {
			return
		}
	}
}
