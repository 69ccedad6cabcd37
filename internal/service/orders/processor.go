// Package orders turns external order events into dispatcher calls.
package orders

import (
	"context"
	"errors"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

// Processor processes orders events
type Processor struct {
	dispatcher DispatchPort
	factory    *actionFactory
}

// NewProcessor creates a new orders.Processor
func NewProcessor(dispatcher DispatchPort) *Processor {
	p := &Processor{dispatcher: dispatcher}
	p.factory = newActionFactory(p.onCreated, p.onStoreStatus, p.onCanceled)
	return p
}

// Handle processes a single orders.Event. Unknown statuses are ignored.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	if p.factory == nil {
		return nil
	}
	fn, ok := p.factory.get(e.Status)
	if !ok {
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onCreated(ctx context.Context, e Event) error {
	_, err := p.dispatcher.Dispatch(ctx, e.OrderID)
	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}
	return err
}

func (p *Processor) onStoreStatus(ctx context.Context, e Event) error {
	_, err := p.dispatcher.ApplyStoreStatus(ctx, e.OrderID, domain.OrderStatus(normalizeStatus(e.Status)))
	return err
}

func (p *Processor) onCanceled(ctx context.Context, e Event) error {
	_, err := p.dispatcher.CancelOrder(ctx, e.OrderID, cancelActor(e.Actor))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func cancelActor(actor string) string {
	switch a := normalizeStatus(actor); a {
	case domain.ActorCustomer, domain.ActorStore, domain.ActorOperator:
		return a
	default:
		return domain.ActorStore
	}
}
