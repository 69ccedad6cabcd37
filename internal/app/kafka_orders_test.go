package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/service/orders"
	"courier-dispatch/internal/transport/kafka"
)

type ctxKey struct{}

type spyHandler struct {
	called int
	ctx    context.Context
	event  orders.Event
	err    error
}

func (s *spyHandler) Handle(ctx context.Context, e orders.Event) error {
	s.called++
	s.ctx = ctx
	s.event = e
	return s.err
}

func requireTimeout2s(t *testing.T, ctx context.Context) {
	t.Helper()
	deadline, ok := ctx.Deadline()
	require.True(t, ok, "expected context with deadline")

	remaining := time.Until(deadline)
	require.Greater(t, remaining, 1*time.Second)
	require.Less(t, remaining, 3*time.Second)
}

func requireCanceled(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected handler context to be canceled after handler returns")
	}
}

func TestMakeOrdersKafka_DelegatesWithDeadline(t *testing.T) {
	t.Parallel()

	hSpy := &spyHandler{}
	h := makeOrdersKafka(hSpy, 2*time.Second)

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	in := orders.Event{OrderID: "order-1", Status: "created"}

	require.NoError(t, h(ctx, in))
	require.Equal(t, 1, hSpy.called)
	require.Equal(t, "v", hSpy.ctx.Value(ctxKey{}))
	require.Equal(t, in, hSpy.event)
	requireTimeout2s(t, hSpy.ctx)
	requireCanceled(t, hSpy.ctx)
}

func TestMakeOrdersKafka_DefaultTimeout(t *testing.T) {
	t.Parallel()

	hSpy := &spyHandler{}
	h := makeOrdersKafka(hSpy, 0)

	require.NoError(t, h(context.Background(), orders.Event{OrderID: "order-1", Status: "created"}))
	deadline, ok := hSpy.ctx.Deadline()
	require.True(t, ok)
	require.Greater(t, time.Until(deadline), 5*time.Second)
}

func TestMakeOrdersKafka_DomainErrorsArePermanent(t *testing.T) {
	t.Parallel()

	for _, sentinel := range []error{apperr.ErrInvalid, apperr.ErrNotFound, apperr.ErrInvalidTransition} {
		hSpy := &spyHandler{err: sentinel}
		h := makeOrdersKafka(hSpy, time.Second)

		err := h(context.Background(), orders.Event{OrderID: "order-2", Status: "ready"})
		require.ErrorIs(t, err, sentinel)
		var perm kafka.PermanentError
		require.True(t, errors.As(err, &perm), sentinel.Error())
	}
}

func TestMakeOrdersKafka_OtherErrorsPassThrough(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("db down")
	hSpy := &spyHandler{err: sentinel}
	h := makeOrdersKafka(hSpy, time.Second)

	err := h(context.Background(), orders.Event{OrderID: "order-3", Status: "created"})
	require.ErrorIs(t, err, sentinel)
	var perm kafka.PermanentError
	require.False(t, errors.As(err, &perm))
}
