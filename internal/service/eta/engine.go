// Package eta keeps a confidence-tagged arrival estimate per order.
package eta

import (
	"context"
	"sync"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/routing"
	"courier-dispatch/internal/logx"
)

// Engine computes estimates with a routing provider and remembers the last
// one per order. A provider failure never fails the caller: the previous
// estimate is returned with low confidence, or a straight-line estimate when
// there is none yet.
type Engine struct {
	provider         provider
	fallback         provider
	recomputations   counter
	providerFailures counter
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time

	mu   sync.Mutex
	last map[string]domain.ETA
}

// NewEngine creates an Engine. Counters may be nil.
func NewEngine(p provider, recomputations, providerFailures counter, timeout time.Duration, logger logx.Logger) *Engine {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Engine{
		provider:         p,
		fallback:         routing.StraightLine{},
		recomputations:   recomputations,
		providerFailures: providerFailures,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		last:             make(map[string]domain.ETA),
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.operationTimeout)
}

// Compute recomputes the estimate for an order. UpdatedAt never goes
// backwards for the same order.
func (e *Engine) Compute(ctx context.Context, orderID string, origin, destination domain.Point, mode domain.TravelMode) domain.ETA {
	if e.recomputations != nil {
		e.recomputations.Inc()
	}

	pctx, cancel := e.withTimeout(ctx)
	est, err := e.provider.Estimate(pctx, origin, destination, mode)
	cancel()
	if err != nil {
		if e.providerFailures != nil {
			e.providerFailures.Inc()
		}
		e.logger.Warn("eta provider failed",
			logx.String("event", "eta_provider_failed"),
			logx.String("order_id", orderID),
			logx.Err(err),
		)
		if prev, ok := e.degrade(orderID); ok {
			return prev
		}
		est, _ = e.fallback.Estimate(ctx, origin, destination, mode)
		est.Confidence = domain.ConfidenceLow
	}

	out := e.store(orderID, fromEstimate(est))
	e.logger.Debug("eta recomputed",
		logx.String("event", "eta_recomputed"),
		logx.String("order_id", orderID),
		logx.Float64("distance_km", out.DistanceKm),
		logx.Float64("minutes", out.EstimatedMinutes),
		logx.String("confidence", string(out.Confidence)),
	)
	return out
}

// Last returns the current estimate of an order.
func (e *Engine) Last(orderID string) (domain.ETA, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.last[orderID]
	return v, ok
}

// Forget drops the order's estimate once tracking ends.
func (e *Engine) Forget(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.last, orderID)
}

func (e *Engine) degrade(orderID string) (domain.ETA, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.last[orderID]
	if !ok {
		return domain.ETA{}, false
	}
	prev.Confidence = domain.ConfidenceLow
	e.last[orderID] = prev
	return prev, true
}

func (e *Engine) store(orderID string, v domain.ETA) domain.ETA {
	e.mu.Lock()
	defer e.mu.Unlock()
	v.UpdatedAt = e.now()
	if prev, ok := e.last[orderID]; ok && prev.UpdatedAt.After(v.UpdatedAt) {
		v.UpdatedAt = prev.UpdatedAt
	}
	e.last[orderID] = v
	return v
}

func fromEstimate(est routing.Estimate) domain.ETA {
	return domain.ETA{
		DistanceKm:       est.DistanceKm,
		EstimatedMinutes: (est.BaseTime + est.TrafficDelay).Minutes(),
		TrafficMinutes:   est.TrafficDelay.Minutes(),
		Optimized:        est.Routed,
		Confidence:       est.Confidence,
	}
}
