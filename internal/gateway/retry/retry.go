// Package retry runs gateway calls with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/logx"
)

type counter interface {
	Inc()
}

// Config describes how many times and how fast a call is retried.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsRetryable is the default classification: context errors, Permanent
// errors and caller mistakes are final, everything else is retried.
func IsRetryable(err error) bool {
	var p permanentError
	switch {
	case err == nil:
		return false
	case errors.As(err, &p):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, apperr.ErrInvalid), errors.Is(err, apperr.ErrNotFound):
		return false
	default:
		return true
	}
}

// Retrier retries calls according to Config.
type Retrier struct {
	logger    logx.Logger
	retries   counter
	cfg       Config
	retryable func(error) bool
	wait      func(context.Context, time.Duration) bool
}

// New creates a Retrier. A nil retryable uses IsRetryable.
func New(logger logx.Logger, retries counter, cfg Config, retryable func(error) bool) *Retrier {
	if logger == nil {
		logger = logx.Nop()
	}
	if retryable == nil {
		retryable = IsRetryable
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retrier{logger: logger, retries: retries, cfg: cfg, retryable: retryable, wait: sleepWithContext}
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts or
// ctx is done. It returns the last error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == r.cfg.MaxAttempts || !r.retryable(err) {
			break
		}
		delay := backoff(r.cfg.BaseDelay, r.cfg.MaxDelay, attempt)
		if r.retries != nil {
			r.retries.Inc()
		}
		r.logger.Warn("gateway retry",
			logx.String("event", "gateway_retry"),
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !r.wait(ctx, delay) {
			break
		}
	}
	var p permanentError
	if errors.As(lastErr, &p) {
		return p.err
	}
	return lastErr
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max || d < 0 {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
