package tracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/ports/dispatchtx"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/repository/memory"
	"courier-dispatch/internal/service/tracking"
)

var (
	t0    = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	start = domain.Point{Lat: 19.4000, Lng: -99.1500}
	dest  = domain.Point{Lat: 19.4326, Lng: -99.1332}
)

// northOf moves p m metres north.
func northOf(p domain.Point, m float64) domain.Point {
	return domain.Point{Lat: p.Lat + m/111195, Lng: p.Lng}
}

type countingETA struct {
	mu    sync.Mutex
	calls []domain.Point
	last  map[string]domain.ETA
}

func (c *countingETA) Compute(_ context.Context, orderID string, origin, _ domain.Point, _ domain.TravelMode) domain.ETA {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, origin)
	v := domain.ETA{DistanceKm: 3, EstimatedMinutes: 9, Confidence: domain.ConfidenceHigh, UpdatedAt: t0}
	if c.last == nil {
		c.last = map[string]domain.ETA{}
	}
	c.last[orderID] = v
	return v
}

func (c *countingETA) Last(orderID string) (domain.ETA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.last[orderID]
	return v, ok
}

func (c *countingETA) Forget(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, orderID)
}

func (c *countingETA) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type recordingEmitter struct {
	mu    sync.Mutex
	kinds []realtime.Kind
}

func (r *recordingEmitter) Emit(_ context.Context, _ realtime.Topic, kind realtime.Kind, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *recordingEmitter) count(kind realtime.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *memory.Store
	tracker  *tracking.Tracker
	eta      *countingETA
	emitter  *recordingEmitter
	cache    *cache.MemoryPositions
	driverID int64
}

func setup(t *testing.T, withAssignment bool) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	pos := start
	at := t0
	d := &domain.Driver{
		Name: "Ana", Phone: "+525512345678", Vehicle: domain.VehicleMotorcycle,
		Active: true, Available: true, Rating: 4.5, Position: &pos, PositionAt: &at,
	}
	require.NoError(t, s.Drivers().Create(ctx, d))

	if withAssignment {
		require.NoError(t, s.Orders().Create(ctx, &domain.Order{
			ID: "o-1", CustomerID: "c-1", StoreID: "s-1", Address: "Reforma 1",
			Destination: &dest, Status: domain.OrderConfirmed, CreatedAt: t0,
		}))
		require.NoError(t, s.Dispatch().WithTx(ctx, func(tx dispatchtx.Repository) error {
			if _, err := tx.ClaimDriver(ctx, d.ID, t0); err != nil {
				return err
			}
			return tx.InsertAssignment(ctx, &domain.Assignment{
				OrderID: "o-1", DriverID: d.ID, Status: domain.AssignmentAccepted, OfferedAt: t0,
			})
		}))
	}

	f := fixture{
		store:    s,
		eta:      &countingETA{},
		emitter:  &recordingEmitter{},
		cache:    cache.NewMemoryPositions(),
		driverID: d.ID,
	}
	f.tracker = tracking.NewTracker(
		s.Locations(), s.Drivers(), f.cache, s.Assignments(), s.Orders(), f.eta, f.emitter,
		tracking.Policy{RefreshInterval: time.Minute, RefreshDistanceMeters: 500},
		time.Second, logx.Nop(),
	)
	return f
}

func (f fixture) ping(t *testing.T, p domain.Point, at time.Time) tracking.IngestResult {
	t.Helper()
	res, err := f.tracker.Ingest(context.Background(), domain.LocationPing{DriverID: f.driverID, Position: p, AccuracyM: 5, RecordedAt: at})
	require.NoError(t, err)
	return res
}

func TestIngest_RecomputesOnlyWhenDeltaExceedsThreshold(t *testing.T) {
	t.Parallel()
	f := setup(t, true)
	f.tracker.Seed("o-1", f.driverID, &start, &dest, domain.VehicleMotorcycle, t0)

	r1 := f.ping(t, northOf(start, 50), t0.Add(10*time.Second))
	r2 := f.ping(t, northOf(start, 120), t0.Add(20*time.Second))
	r3 := f.ping(t, northOf(start, 900), t0.Add(30*time.Second))

	require.False(t, r1.Recomputed)
	require.False(t, r2.Recomputed)
	require.True(t, r3.Recomputed)
	require.NotNil(t, r3.ETA)
	require.Equal(t, 1, f.eta.count())
	require.Equal(t, 3, f.emitter.count(realtime.KindPosition))
	require.Equal(t, 1, f.emitter.count(realtime.KindETA))
}

func TestIngest_RecomputesAfterRefreshInterval(t *testing.T) {
	t.Parallel()
	f := setup(t, true)
	f.tracker.Seed("o-1", f.driverID, &start, &dest, domain.VehicleMotorcycle, t0)

	require.False(t, f.ping(t, northOf(start, 10), t0.Add(30*time.Second)).Recomputed)
	require.True(t, f.ping(t, northOf(start, 20), t0.Add(61*time.Second)).Recomputed)
	require.False(t, f.ping(t, northOf(start, 30), t0.Add(90*time.Second)).Recomputed)
	require.Equal(t, 1, f.eta.count())
}

func TestIngest_UnseededOrderRecomputesOnFirstPing(t *testing.T) {
	t.Parallel()
	f := setup(t, true)

	res := f.ping(t, northOf(start, 10), t0.Add(5*time.Second))
	require.Equal(t, "o-1", res.OrderID)
	require.True(t, res.Recomputed)

	require.False(t, f.ping(t, northOf(start, 20), t0.Add(10*time.Second)).Recomputed)
}

func TestIngest_UntrackedDriverIsStoredOnly(t *testing.T) {
	t.Parallel()
	f := setup(t, false)

	res := f.ping(t, northOf(start, 10), t0.Add(time.Minute))
	require.True(t, res.Current)
	require.Empty(t, res.OrderID)
	require.Zero(t, f.emitter.count(realtime.KindPosition))

	latest, err := f.store.Locations().LatestPing(context.Background(), f.driverID)
	require.NoError(t, err)
	require.NotNil(t, latest)

	cached, err := f.cache.Get(context.Background(), f.driverID)
	require.NoError(t, err)
	require.Equal(t, northOf(start, 10), cached.Point)
}

func TestIngest_OutOfOrderPingNeverMovesPositionBack(t *testing.T) {
	t.Parallel()
	f := setup(t, true)
	f.tracker.Seed("o-1", f.driverID, &start, &dest, domain.VehicleMotorcycle, t0)

	f.ping(t, northOf(start, 100), t0.Add(20*time.Second))
	res := f.ping(t, northOf(start, 5000), t0.Add(10*time.Second))
	require.False(t, res.Current)
	require.False(t, res.Recomputed)

	d, err := f.store.Drivers().Get(context.Background(), f.driverID)
	require.NoError(t, err)
	require.Equal(t, northOf(start, 100), *d.Position)
	require.Equal(t, 1, f.emitter.count(realtime.KindPosition))
}

func TestIngest_Validation(t *testing.T) {
	t.Parallel()
	f := setup(t, false)
	neg := -1.0

	cases := []domain.LocationPing{
		{DriverID: 0, Position: start},
		{DriverID: f.driverID, Position: domain.Point{Lat: 100}},
		{DriverID: f.driverID, Position: start, AccuracyM: -1},
		{DriverID: f.driverID, Position: start, SpeedKmh: &neg},
	}
	for _, p := range cases {
		_, err := f.tracker.Ingest(context.Background(), p)
		require.ErrorIs(t, err, apperr.ErrInvalid)
	}

	_, err := f.tracker.Ingest(context.Background(), domain.LocationPing{DriverID: 999, Position: start})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCurrentETA(t *testing.T) {
	t.Parallel()
	f := setup(t, true)

	v, err := f.tracker.CurrentETA(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, domain.ConfidenceHigh, v.Confidence)
	require.Equal(t, []domain.Point{start}, f.eta.calls)

	_, err = f.tracker.CurrentETA(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, 1, f.eta.count(), "the cached estimate is served")

	_, err = f.tracker.CurrentETA(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	f.tracker.Forget("o-1")
	_, ok := f.eta.Last("o-1")
	require.False(t, ok)
}
