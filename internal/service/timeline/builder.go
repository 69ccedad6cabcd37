// Package timeline projects the status event log into the customer timeline.
package timeline

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

// Stage names, in display order.
const (
	StagePending   = "pendiente"
	StageConfirmed = "confirmado"
	StagePreparing = "preparando"
	StageReady     = "listo_recoger"
	StageOnTheWay  = "en_camino"
	StageDelivered = "entregado"
	StageCancelled = "cancelado"
)

type stage struct {
	name    string
	message string
}

var stages = []stage{
	{StagePending, "Pedido recibido"},
	{StageConfirmed, "Pedido confirmado"},
	{StagePreparing, "La tienda está preparando tu pedido"},
	{StageReady, "Pedido listo para recoger"},
	{StageOnTheWay, "Tu pedido va en camino"},
	{StageDelivered, "Pedido entregado"},
}

const cancelledMessage = "Pedido cancelado"

var orderStage = map[string]int{
	string(domain.OrderConfirmed):      1,
	string(domain.OrderPreparing):      2,
	string(domain.OrderReady):          3,
	string(domain.OrderOutForDelivery): 4,
	string(domain.OrderDelivered):      5,
}

var assignmentStage = map[string]int{
	string(domain.AssignmentAccepted):          1,
	string(domain.AssignmentPickedUp):          4,
	string(domain.AssignmentHeadingToCustomer): 4,
	string(domain.AssignmentDelivered):         5,
}

// Build returns the fixed stage sequence for an order. Reaching a stage
// completes every earlier one with the same timestamp; nothing completes
// after a cancellation, which replaces the delivered stage.
func Build(o domain.Order, events []domain.StatusEvent) []domain.TimelineEvent {
	at := make([]*time.Time, len(stages))
	created := o.CreatedAt
	at[0] = &created
	reached := 0

	var cancelledAt *time.Time
	for _, e := range events {
		if cancelledAt != nil {
			break
		}
		if e.Entity == domain.EntityOrder && e.ToStatus == string(domain.OrderCancelled) {
			ts := e.CreatedAt
			cancelledAt = &ts
			continue
		}
		var r int
		switch e.Entity {
		case domain.EntityOrder:
			r = orderStage[e.ToStatus]
		case domain.EntityAssignment:
			r = assignmentStage[e.ToStatus]
		}
		for s := reached + 1; s <= r; s++ {
			ts := e.CreatedAt
			at[s] = &ts
		}
		if r > reached {
			reached = r
		}
	}

	last := len(stages) - 1
	out := make([]domain.TimelineEvent, 0, len(stages))
	for i, st := range stages[:last] {
		out = append(out, domain.TimelineEvent{Stage: st.name, Message: st.message, Completed: i <= reached, At: at[i]})
	}
	if cancelledAt != nil || o.Status == domain.OrderCancelled {
		if cancelledAt == nil {
			ts := o.UpdatedAt
			cancelledAt = &ts
		}
		return append(out, domain.TimelineEvent{Stage: StageCancelled, Message: cancelledMessage, Completed: true, At: cancelledAt})
	}
	st := stages[last]
	return append(out, domain.TimelineEvent{Stage: st.name, Message: st.message, Completed: reached >= last, At: at[last]})
}

type eventReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]domain.StatusEvent, error)
}

// Builder reads the event log and builds timelines on demand.
type Builder struct {
	orders           eventReader
	operationTimeout time.Duration
}

// NewBuilder creates a Builder.
func NewBuilder(orders eventReader, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Builder{orders: orders, operationTimeout: timeout}
}

// Timeline returns the current timeline of an order.
func (b *Builder) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, b.operationTimeout)
	defer cancel()

	o, err := b.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
	}
	events, err := b.orders.ListEvents(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return Build(*o, events), nil
}
