package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	testlog "courier-dispatch/internal/testutil"
)

type counterStub struct{ n int64 }

func (c *counterStub) Inc() { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 {
	return atomic.LoadInt64(&c.n)
}

var errFlaky = errors.New("flaky")

func TestRetrier_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	ctr := &counterStub{}
	r := New(rec.Logger(), ctr, Config{MaxAttempts: 5}, nil)

	var calls int32
	got, err := Value(context.Background(), r, "geocode", func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.EqualValues(t, 3, calls)
	require.EqualValues(t, 2, ctr.Count())

	entries := rec.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "gateway retry", entries[0].Msg)
	op, ok := entries[0].Field("op")
	require.True(t, ok)
	require.Equal(t, "geocode", op)
}

func TestRetrier_StopsOnPermanent(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, Config{MaxAttempts: 5}, nil)
	var calls int32
	err := r.Do(context.Background(), "notify", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errFlaky)
	})

	require.ErrorIs(t, err, errFlaky)
	require.EqualValues(t, 1, calls)
}

func TestRetrier_StopsOnCallerMistake(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, Config{MaxAttempts: 5}, nil)
	var calls int32
	err := r.Do(context.Background(), "geocode", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return fmt.Errorf("address: %w", apperr.ErrNotFound)
	})

	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.EqualValues(t, 1, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	ctr := &counterStub{}
	r := New(nil, ctr, Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil)
	var calls int32
	err := r.Do(context.Background(), "route", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	require.EqualValues(t, 3, calls)
	require.EqualValues(t, 2, ctr.Count())
}

func TestRetrier_ContextCanceledDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := New(nil, nil, Config{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, nil)
	var calls int32
	err := r.Do(ctx, "route", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
		}
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	require.EqualValues(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, backoff(100*time.Millisecond, time.Second, 1))
	require.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, time.Second, 3))
	require.Equal(t, time.Second, backoff(100*time.Millisecond, time.Second, 10))
}
