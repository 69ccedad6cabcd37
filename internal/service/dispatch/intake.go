package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

// NewOrder is an order placed by a customer.
type NewOrder struct {
	CustomerID  string
	StoreID     string
	Address     string
	Destination *domain.Point
	Items       []domain.OrderItem
	DeliveryFee domain.Money
}

func validateNewOrder(n *NewOrder) error {
	n.CustomerID = strings.TrimSpace(n.CustomerID)
	n.StoreID = strings.TrimSpace(n.StoreID)
	n.Address = strings.TrimSpace(n.Address)
	if n.CustomerID == "" || n.StoreID == "" || n.Address == "" || len(n.Items) == 0 {
		return apperr.ErrInvalid
	}
	if n.Destination != nil && !n.Destination.Valid() {
		return apperr.ErrInvalid
	}
	currency := n.Items[0].UnitPrice.Currency
	if currency == "" || n.DeliveryFee.Amount < 0 {
		return apperr.ErrInvalid
	}
	if n.DeliveryFee.Currency == "" {
		n.DeliveryFee.Currency = currency
	}
	if n.DeliveryFee.Currency != currency {
		return apperr.ErrInvalid
	}
	for _, it := range n.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity <= 0 ||
			it.UnitPrice.Amount < 0 || it.UnitPrice.Currency != currency {
			return apperr.ErrInvalid
		}
	}
	return nil
}

// CreateOrder persists an order with its items, geocodes it and tries to
// dispatch it. Item failures delete the order again. Geocoding and dispatch
// failures never fail the call: the order is returned flagged or unassigned.
func (d *Dispatcher) CreateOrder(ctx context.Context, n NewOrder) (*domain.Order, Result, error) {
	if err := validateNewOrder(&n); err != nil {
		return nil, Result{}, err
	}

	var subtotal int64
	for _, it := range n.Items {
		subtotal += it.UnitPrice.Amount * int64(it.Quantity)
	}
	currency := n.DeliveryFee.Currency
	o := &domain.Order{
		ID:          uuid.NewString(),
		CustomerID:  n.CustomerID,
		StoreID:     n.StoreID,
		Address:     n.Address,
		Destination: n.Destination,
		Status:      domain.OrderPending,
		Subtotal:    domain.Money{Amount: subtotal, Currency: currency},
		DeliveryFee: n.DeliveryFee,
		Total:       domain.Money{Amount: subtotal + n.DeliveryFee.Amount, Currency: currency},
		CreatedAt:   d.now(),
	}

	if err := d.persist(ctx, o, n.Items); err != nil {
		return nil, Result{}, err
	}
	d.Logger.Info("order created",
		logx.String("event", "order_created"),
		logx.String("order_id", o.ID),
		logx.String("customer_id", o.CustomerID),
		logx.Int("items", len(o.Items)),
		logx.Int64("total", o.Total.Amount),
	)

	if o.Destination == nil {
		if r, ok := d.geocode(ctx, o); !ok {
			return o, r, nil
		}
	}

	r, err := d.dispatch(ctx, o, modeAuto)
	if err != nil {
		d.Logger.Error("dispatch after intake failed",
			logx.String("event", "dispatch_failed"),
			logx.String("order_id", o.ID),
			logx.Err(err),
		)
		return o, Result{Outcome: OutcomeUnassigned, Reason: "dispatch_failed"}, nil
	}
	return o, r, nil
}

func (d *Dispatcher) persist(ctx context.Context, o *domain.Order, items []domain.OrderItem) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.Orders.Create(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	if err := d.Orders.InsertItems(ctx, o.ID, items); err != nil {
		if derr := d.Orders.Delete(ctx, o.ID); derr != nil {
			d.Logger.Error("compensating delete failed",
				logx.String("event", "order_rollback_failed"),
				logx.String("order_id", o.ID),
				logx.Err(derr),
			)
		}
		return fmt.Errorf("insert order items: %w", err)
	}
	o.Items = items
	return nil
}

// geocode resolves the order address. On failure the order is flagged for
// manual assignment and false is returned with the matching Result.
func (d *Dispatcher) geocode(ctx context.Context, o *domain.Order) (Result, bool) {
	gctx, cancel := d.withTimeout(ctx)
	p, err := d.Geocoder.Resolve(gctx, o.Address)
	cancel()
	if err == nil {
		sctx, cancel := d.withTimeout(ctx)
		err = d.Orders.SetDestination(sctx, o.ID, p)
		cancel()
		if err == nil {
			o.Destination = &p
			return Result{}, true
		}
	}

	d.Logger.Warn("geocoding failed",
		logx.String("event", "geocoding_failed"),
		logx.String("order_id", o.ID),
		logx.Err(err),
	)
	r, ferr := d.escalate(ctx, o, ReasonGeocodingFailed)
	if ferr != nil {
		d.Logger.Error("flag order failed",
			logx.String("event", "dispatch_escalate_failed"),
			logx.String("order_id", o.ID),
			logx.Err(ferr),
		)
		return Result{Outcome: OutcomeManual, Reason: ReasonGeocodingFailed}, false
	}
	return r, false
}
