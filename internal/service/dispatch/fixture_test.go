package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/notify"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/repository/memory"
	"courier-dispatch/internal/service/assignment"
	"courier-dispatch/internal/service/candidate"
	"courier-dispatch/internal/service/order"
	"courier-dispatch/internal/service/selector"
	"courier-dispatch/internal/service/timeline"
)

var dest = domain.Point{Lat: 19.4326, Lng: -99.1332}

func north(km float64) *domain.Point {
	return &domain.Point{Lat: dest.Lat + km/111.195, Lng: dest.Lng}
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) after(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs every pending timer once, like the deadline passing.
func (c *fakeClock) fire() {
	for _, t := range c.active() {
		t.fired = true
		t.f()
	}
}

type stubGeocoder struct {
	points map[string]domain.Point
}

func (g stubGeocoder) Resolve(_ context.Context, address string) (domain.Point, error) {
	if p, ok := g.points[address]; ok {
		return p, nil
	}
	return domain.Point{}, apperr.ErrNotFound
}

type seedRecord struct {
	orderID  string
	driverID int64
}

type stubTracker struct {
	mu      sync.Mutex
	seeds   []seedRecord
	forgets []string
}

func (s *stubTracker) Seed(orderID string, driverID int64, _ *domain.Point, _ *domain.Point, _ domain.VehicleType, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds = append(s.seeds, seedRecord{orderID: orderID, driverID: driverID})
}

func (s *stubTracker) Forget(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgets = append(s.forgets, orderID)
}

type emitted struct {
	topic realtime.Topic
	kind  realtime.Kind
	body  any
}

type recordingEmitter struct {
	mu  sync.Mutex
	out []emitted
}

func (r *recordingEmitter) Emit(_ context.Context, topic realtime.Topic, kind realtime.Kind, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, emitted{topic: topic, kind: kind, body: payload})
}

func (r *recordingEmitter) on(topic realtime.Topic, kind realtime.Kind) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.out {
		if e.topic == topic && e.kind == kind {
			out = append(out, e.body)
		}
	}
	return out
}

type sent struct {
	userID string
	title  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{userID: userID, title: msg.Title})
	return nil
}

func (n *recordingNotifier) to(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.userID == userID {
			out = append(out, s.title)
		}
	}
	return out
}

// failingItems breaks InsertItems to exercise the compensating delete.
type failingItems struct {
	*memory.OrderRepo
}

func (failingItems) InsertItems(context.Context, string, []domain.OrderItem) error {
	return errors.New("items table unavailable")
}

type fixture struct {
	store     *memory.Store
	d         *Dispatcher
	clock     *fakeClock
	tracker   *stubTracker
	emitter   *recordingEmitter
	notifier  *recordingNotifier
	outcomes  *prometheus.CounterVec
	geocoder  stubGeocoder
	orderRepo orderStore
}

type option func(*fixture, *Config)

func withConfig(fn func(*Config)) option {
	return func(_ *fixture, c *Config) { fn(c) }
}

func withOrderStore(fn func(*memory.Store) orderStore) option {
	return func(f *fixture, _ *Config) { f.orderRepo = fn(f.store) }
}

func setup(t *testing.T, opts ...option) *fixture {
	t.Helper()
	s := memory.New()
	f := &fixture{
		store:    s,
		clock:    &fakeClock{},
		tracker:  &stubTracker{},
		emitter:  &recordingEmitter{},
		notifier: &recordingNotifier{},
		outcomes: metrics.NewAssignmentsTotal(),
		geocoder: stubGeocoder{points: map[string]domain.Point{"Reforma 222": dest}},
	}
	cfg := Config{
		Policy:                  candidate.Policy{MaxDistanceKm: 10, MinRating: 3.5},
		AcceptanceTimeout:       30 * time.Second,
		MaxReassignmentAttempts: 3,
		NoCandidateRetryDelay:   20 * time.Second,
		MaxNoCandidateRetries:   2,
	}
	f.orderRepo = s.Orders()
	for _, o := range opts {
		o(f, &cfg)
	}

	runner := s.Dispatch()
	f.d = New(Deps{
		Orders:      f.orderRepo,
		Assignments: s.Assignments(),
		Drivers:     s.Drivers(),
		Geocoder:    f.geocoder,
		Candidates:  candidate.NewFilter(s.Drivers(), cfg.Policy, time.Hour, time.Second),
		Selector:    selector.NewSelector(runner, geo.NewSpeedProfile(), cfg.AcceptanceTimeout, time.Second, nil, logx.Nop()),
		Transitions: assignment.NewMachine(runner, s.Assignments(), time.Second, logx.Nop()),
		Lifecycle:   order.NewMachine(runner, time.Second, logx.Nop()),
		Tracker:     f.tracker,
		Timeline:    timeline.NewBuilder(s.Orders(), time.Second),
		Emitter:     f.emitter,
		Notifier:    f.notifier,
		Outcomes:    f.outcomes,
		Logger:      logx.Nop(),
	}, cfg, time.Second)
	f.d.offers = newTimerSet(f.clock.after)
	f.d.retries = newTimerSet(f.clock.after)
	t.Cleanup(f.d.Close)
	return f
}

func (f *fixture) addDriver(t *testing.T, userID string, rating, km float64) *domain.Driver {
	t.Helper()
	d := &domain.Driver{
		UserID: userID, Name: userID, Phone: "+52550000" + userID[len(userID)-4:],
		Vehicle: domain.VehicleMotorcycle, Active: true, Available: true,
		Rating: rating, Position: north(km),
	}
	require.NoError(t, f.store.Drivers().Create(context.Background(), d))
	return d
}

func (f *fixture) createOrder(t *testing.T) (*domain.Order, Result) {
	t.Helper()
	o, r, err := f.d.CreateOrder(context.Background(), NewOrder{
		CustomerID: "cust-1",
		StoreID:    "store-1",
		Address:    "Reforma 222",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Name: "Tacos", Quantity: 2, UnitPrice: domain.Money{Amount: 4500, Currency: "MXN"}},
		},
		DeliveryFee: domain.Money{Amount: 2500, Currency: "MXN"},
	})
	require.NoError(t, err)
	return o, r
}

func (f *fixture) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.store.Orders().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (f *fixture) driver(t *testing.T, id int64) *domain.Driver {
	t.Helper()
	d, err := f.store.Drivers().Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

func (f *fixture) active(t *testing.T, orderID string) *domain.Assignment {
	t.Helper()
	a, err := f.store.Assignments().GetActiveByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return a
}
