package realtime

import (
	"context"
	"time"

	"courier-dispatch/internal/gateway/retry"
	"courier-dispatch/internal/logx"
)

type counter interface {
	Inc()
}

// Emitter publishes updates that follow a committed state change. Failed
// publishes are retried by the Retrier, then logged and counted; Emit never
// reports them to the caller.
type Emitter struct {
	pub      Publisher
	retrier  *retry.Retrier
	failures counter
	logger   logx.Logger
	now      func() time.Time
}

// NewEmitter creates an Emitter. failures may be nil.
func NewEmitter(pub Publisher, r *retry.Retrier, failures counter, logger logx.Logger) *Emitter {
	if logger == nil {
		logger = logx.Nop()
	}
	if r == nil {
		r = retry.New(logger, nil, retry.Config{MaxAttempts: 1}, nil)
	}
	return &Emitter{
		pub:      pub,
		retrier:  r,
		failures: failures,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Emit encodes payload and publishes it on topic.
func (e *Emitter) Emit(ctx context.Context, topic Topic, kind Kind, payload any) {
	msg, err := NewMessage(topic, kind, payload, e.now())
	if err == nil {
		err = e.retrier.Do(ctx, "realtime.publish", func(ctx context.Context) error {
			return e.pub.Publish(ctx, msg)
		})
	}
	if err == nil {
		return
	}
	if e.failures != nil {
		e.failures.Inc()
	}
	e.logger.Warn("realtime publish failed",
		logx.String("event", "publish_failed"),
		logx.String("topic", string(topic)),
		logx.String("kind", string(kind)),
		logx.Err(err),
	)
}
