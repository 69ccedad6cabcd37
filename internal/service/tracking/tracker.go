// Package tracking ingests driver location pings and keeps order ETAs fresh.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
)

// Policy decides when a ping triggers an ETA recomputation.
type Policy struct {
	RefreshInterval       time.Duration
	RefreshDistanceMeters float64
}

// PositionUpdate is published on the order topic for every tracked ping.
type PositionUpdate struct {
	OrderID    string    `json:"order_id"`
	DriverID   int64     `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ETAUpdate is published on the order topic after a recomputation.
type ETAUpdate struct {
	OrderID string     `json:"order_id"`
	ETA     domain.ETA `json:"eta"`
}

// IngestResult reports what a ping caused.
type IngestResult struct {
	Ping       domain.LocationPing
	Current    bool
	OrderID    string
	Recomputed bool
	ETA        *domain.ETA
}

type track struct {
	mu          sync.Mutex
	driverID    int64
	destination *domain.Point
	mode        domain.TravelMode
	lastPos     *domain.Point
	lastAt      time.Time
}

// Tracker is the push-driven location ingestion point.
type Tracker struct {
	pings            pingStore
	drivers          driverStore
	positions        cache.PositionCache
	assignments      assignmentReader
	orders           orderReader
	eta              etaEngine
	emitter          emitter
	policy           Policy
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time

	mu     sync.Mutex
	tracks map[string]*track
}

// NewTracker creates a Tracker.
func NewTracker(
	pings pingStore,
	drivers driverStore,
	positions cache.PositionCache,
	assignments assignmentReader,
	orders orderReader,
	eta etaEngine,
	em emitter,
	policy Policy,
	timeout time.Duration,
	logger logx.Logger,
) *Tracker {
	if policy.RefreshInterval <= 0 {
		policy.RefreshInterval = time.Minute
	}
	if policy.RefreshDistanceMeters <= 0 {
		policy.RefreshDistanceMeters = 500
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Tracker{
		pings:            pings,
		drivers:          drivers,
		positions:        positions,
		assignments:      assignments,
		orders:           orders,
		eta:              eta,
		emitter:          em,
		policy:           policy,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		tracks:           make(map[string]*track),
	}
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.operationTimeout)
}

// Seed starts tracking an order from the position its driver had when the
// assignment was made. The next recomputation happens once the policy says so.
func (t *Tracker) Seed(orderID string, driverID int64, origin *domain.Point, destination *domain.Point, vehicle domain.VehicleType, at time.Time) {
	tr := &track{
		driverID:    driverID,
		destination: destination,
		mode:        domain.TravelModeFor(vehicle),
		lastAt:      at,
	}
	if origin != nil {
		p := *origin
		tr.lastPos = &p
	}
	t.mu.Lock()
	t.tracks[orderID] = tr
	t.mu.Unlock()
}

// Forget stops tracking an order and drops its ETA.
func (t *Tracker) Forget(orderID string) {
	t.mu.Lock()
	delete(t.tracks, orderID)
	t.mu.Unlock()
	t.eta.Forget(orderID)
}

func validatePing(p *domain.LocationPing) error {
	if p.DriverID <= 0 || !p.Position.Valid() || p.AccuracyM < 0 {
		return apperr.ErrInvalid
	}
	if p.SpeedKmh != nil && *p.SpeedKmh < 0 {
		return apperr.ErrInvalid
	}
	if p.Heading != nil && (*p.Heading < 0 || *p.Heading >= 360) {
		return apperr.ErrInvalid
	}
	return nil
}

// Ingest stores a ping and, when the driver works an active assignment,
// publishes the position and recomputes the ETA as the policy dictates.
// Out-of-order pings are stored but change nothing else.
func (t *Tracker) Ingest(ctx context.Context, p domain.LocationPing) (IngestResult, error) {
	if err := validatePing(&p); err != nil {
		return IngestResult{}, err
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = t.now()
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if err := t.pings.AppendPing(ctx, &p); err != nil {
		return IngestResult{}, fmt.Errorf("append ping: %w", err)
	}
	res := IngestResult{Ping: p}

	current, err := t.drivers.UpdatePosition(ctx, p.DriverID, p.Position, p.RecordedAt)
	if err != nil {
		return res, fmt.Errorf("update position: %w", err)
	}
	if !current {
		t.logger.Debug("stale ping stored",
			logx.String("event", "ping_stale"),
			logx.Int64("driver_id", p.DriverID),
			logx.Time("recorded_at", p.RecordedAt),
		)
		return res, nil
	}
	res.Current = true

	if err := t.positions.Set(ctx, cache.Position{
		DriverID:   p.DriverID,
		Point:      p.Position,
		SpeedKmh:   p.SpeedKmh,
		Heading:    p.Heading,
		RecordedAt: p.RecordedAt,
	}); err != nil {
		t.logger.Warn("position cache update failed",
			logx.String("event", "position_cache_failed"),
			logx.Int64("driver_id", p.DriverID),
			logx.Err(err),
		)
	}

	a, err := t.assignments.GetActiveByDriver(ctx, p.DriverID)
	if err != nil {
		return res, fmt.Errorf("active assignment: %w", err)
	}
	if a == nil {
		return res, nil
	}
	res.OrderID = a.OrderID

	tr, err := t.trackFor(ctx, a)
	if err != nil {
		return res, err
	}

	t.emitter.Emit(ctx, realtime.OrderTopic(a.OrderID), realtime.KindPosition, PositionUpdate{
		OrderID:    a.OrderID,
		DriverID:   p.DriverID,
		Lat:        p.Position.Lat,
		Lng:        p.Position.Lng,
		SpeedKmh:   p.SpeedKmh,
		Heading:    p.Heading,
		RecordedAt: p.RecordedAt,
	})

	dest, mode, due := t.due(tr, p)
	if !due {
		return res, nil
	}

	v := t.eta.Compute(ctx, a.OrderID, p.Position, *dest, mode)
	res.Recomputed = true
	res.ETA = &v
	t.emitter.Emit(ctx, realtime.OrderTopic(a.OrderID), realtime.KindETA, ETAUpdate{OrderID: a.OrderID, ETA: v})
	return res, nil
}

// due decides under the track lock whether p triggers a recomputation and
// moves the reference point when it does.
func (t *Tracker) due(tr *track, p domain.LocationPing) (*domain.Point, domain.TravelMode, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.destination == nil {
		return nil, "", false
	}
	elapsed := p.RecordedAt.Sub(tr.lastAt)
	moved := tr.lastPos == nil || geo.DistanceMeters(*tr.lastPos, p.Position) > t.policy.RefreshDistanceMeters
	if !moved && elapsed <= t.policy.RefreshInterval {
		return nil, "", false
	}
	pos := p.Position
	tr.lastPos = &pos
	tr.lastAt = p.RecordedAt
	dest := *tr.destination
	return &dest, tr.mode, true
}

// trackFor returns the order's track, rebuilding it after a restart. A
// rebuilt track recomputes on its first ping.
func (t *Tracker) trackFor(ctx context.Context, a *domain.Assignment) (*track, error) {
	t.mu.Lock()
	tr, ok := t.tracks[a.OrderID]
	t.mu.Unlock()
	if ok && tr.driverID == a.DriverID {
		return tr, nil
	}

	o, err := t.orders.Get(ctx, a.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	d, err := t.drivers.Get(ctx, a.DriverID)
	if err != nil {
		return nil, fmt.Errorf("load driver: %w", err)
	}
	tr = &track{driverID: a.DriverID, mode: domain.ModeDriving}
	if o != nil {
		tr.destination = o.Destination
	}
	if d != nil {
		tr.mode = domain.TravelModeFor(d.Vehicle)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.tracks[a.OrderID]; ok && cur.driverID == a.DriverID {
		return cur, nil
	}
	t.tracks[a.OrderID] = tr
	return tr, nil
}

// Position returns the driver's current position, preferring the cache.
func (t *Tracker) Position(ctx context.Context, driverID int64) (*cache.Position, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if p, err := t.positions.Get(ctx, driverID); err == nil && p != nil {
		return p, nil
	} else if err != nil {
		t.logger.Warn("position cache read failed",
			logx.String("event", "position_cache_failed"),
			logx.Int64("driver_id", driverID),
			logx.Err(err),
		)
	}
	d, err := t.drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("driver %d: %w", driverID, apperr.ErrNotFound)
	}
	if d.Position == nil {
		return nil, nil
	}
	out := &cache.Position{DriverID: d.ID, Point: *d.Position}
	if d.PositionAt != nil {
		out.RecordedAt = *d.PositionAt
	}
	return out, nil
}

// CurrentETA returns the order's latest estimate, computing one from the
// driver's current position when none exists yet.
func (t *Tracker) CurrentETA(ctx context.Context, orderID string) (domain.ETA, error) {
	if v, ok := t.eta.Last(orderID); ok {
		return v, nil
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	o, err := t.orders.Get(ctx, orderID)
	if err != nil {
		return domain.ETA{}, err
	}
	if o == nil {
		return domain.ETA{}, fmt.Errorf("order %q: %w", orderID, apperr.ErrNotFound)
	}
	if o.Destination == nil {
		return domain.ETA{}, fmt.Errorf("order %q has no coordinates: %w", orderID, apperr.ErrNotFound)
	}
	a, err := t.assignments.GetActiveByOrder(ctx, orderID)
	if err != nil {
		return domain.ETA{}, err
	}
	if a == nil {
		return domain.ETA{}, fmt.Errorf("order %q has no driver: %w", orderID, apperr.ErrNotFound)
	}
	pos, err := t.Position(ctx, a.DriverID)
	if err != nil {
		return domain.ETA{}, err
	}
	if pos == nil {
		return domain.ETA{}, fmt.Errorf("driver %d has no position: %w", a.DriverID, apperr.ErrNotFound)
	}
	tr, err := t.trackFor(ctx, a)
	if err != nil {
		return domain.ETA{}, err
	}
	tr.mu.Lock()
	mode := tr.mode
	tr.mu.Unlock()
	return t.eta.Compute(ctx, orderID, pos.Point, *o.Destination, mode), nil
}
