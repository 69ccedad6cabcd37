package app

import (
	"context"
	"errors"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/service/orders"
	"courier-dispatch/internal/transport/kafka"
)

const orderEventTimeout = 10 * time.Second

type orderEventHandler interface {
	Handle(ctx context.Context, e orders.Event) error
}

// makeOrdersKafka bounds each event by timeout and reports failures caused by
// the event itself as permanent.
func makeOrdersKafka(h orderEventHandler, timeout time.Duration) kafka.HandleFunc {
	if timeout <= 0 {
		timeout = orderEventTimeout
	}
	return func(ctx context.Context, event orders.Event) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := h.Handle(ctx, event)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperr.ErrInvalid),
			errors.Is(err, apperr.ErrNotFound),
			errors.Is(err, apperr.ErrInvalidTransition):
			return kafka.Permanent(err)
		default:
			return err
		}
	}
}
