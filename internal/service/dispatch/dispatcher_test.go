package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/repository/memory"
	"courier-dispatch/internal/service/order"
	"courier-dispatch/internal/service/timeline"
	testlog "courier-dispatch/internal/testutil"
)

func TestCreateOrder_OffersClosestDriver(t *testing.T) {
	t.Parallel()
	f := setup(t)
	near := f.addDriver(t, "drv-0001", 4.8, 1)
	f.addDriver(t, "drv-0002", 4.9, 3)

	o, r := f.createOrder(t)

	require.Equal(t, OutcomeAssigned, r.Outcome)
	require.NotNil(t, r.Assignment)
	assert.Equal(t, near.ID, r.Assignment.DriverID)
	assert.Equal(t, domain.AssignmentOffered, r.Assignment.Status)
	assert.Equal(t, int64(9000), o.Subtotal.Amount)
	assert.Equal(t, int64(11500), o.Total.Amount)
	assert.Equal(t, "MXN", o.Total.Currency)
	require.NotNil(t, o.Destination)

	id, ok := f.d.offers.pending(o.ID)
	require.True(t, ok)
	assert.Equal(t, r.Assignment.ID, id)
	require.Len(t, f.clock.active(), 1)
	assert.Equal(t, 30*time.Second, f.clock.active()[0].d)

	assert.False(t, f.driver(t, near.ID).Available)
	assert.Len(t, f.emitter.on(realtime.DriverTopic(near.ID), realtime.KindOffer), 1)
	assert.Len(t, f.emitter.on(realtime.OrderTopic(o.ID), realtime.KindStatus), 1)
	assert.Equal(t, []string{"Nuevo pedido asignado"}, f.notifier.to("drv-0001"))
	require.Len(t, f.tracker.seeds, 1)
	assert.Equal(t, seedRecord{orderID: o.ID, driverID: near.ID}, f.tracker.seeds[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.outcomes.WithLabelValues(metrics.OutcomeAssigned)))
}

func TestCreateOrder_Validation(t *testing.T) {
	t.Parallel()
	f := setup(t)
	item := domain.OrderItem{ProductID: "p-1", Quantity: 1, UnitPrice: domain.Money{Amount: 100, Currency: "MXN"}}

	tests := []struct {
		name string
		in   NewOrder
	}{
		{"no customer", NewOrder{StoreID: "s", Address: "a", Items: []domain.OrderItem{item}}},
		{"no address", NewOrder{CustomerID: "c", StoreID: "s", Address: "  ", Items: []domain.OrderItem{item}}},
		{"no items", NewOrder{CustomerID: "c", StoreID: "s", Address: "a"}},
		{"zero quantity", NewOrder{CustomerID: "c", StoreID: "s", Address: "a", Items: []domain.OrderItem{
			{ProductID: "p-1", Quantity: 0, UnitPrice: domain.Money{Amount: 100, Currency: "MXN"}},
		}}},
		{"mixed currency", NewOrder{CustomerID: "c", StoreID: "s", Address: "a", Items: []domain.OrderItem{
			item, {ProductID: "p-2", Quantity: 1, UnitPrice: domain.Money{Amount: 100, Currency: "USD"}},
		}}},
		{"fee currency", NewOrder{CustomerID: "c", StoreID: "s", Address: "a", Items: []domain.OrderItem{item},
			DeliveryFee: domain.Money{Amount: 10, Currency: "USD"}}},
		{"bad destination", NewOrder{CustomerID: "c", StoreID: "s", Address: "a", Items: []domain.OrderItem{item},
			Destination: &domain.Point{Lat: 91, Lng: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.d.CreateOrder(context.Background(), tt.in)
			require.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}
}

func TestCreateOrder_ItemFailureDeletesOrder(t *testing.T) {
	t.Parallel()
	f := setup(t, withOrderStore(func(s *memory.Store) orderStore {
		return failingItems{OrderRepo: s.Orders()}
	}))

	_, _, err := f.d.CreateOrder(context.Background(), NewOrder{
		CustomerID:  "cust-1",
		StoreID:     "store-1",
		Address:     "Reforma 222",
		Destination: &dest,
		Items: []domain.OrderItem{
			{ProductID: "p-1", Quantity: 1, UnitPrice: domain.Money{Amount: 100, Currency: "MXN"}},
		},
	})
	require.Error(t, err)

	left, err := f.store.Orders().ListAwaitingDriver(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCreateOrder_GeocodingFailureFlagsManual(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.addDriver(t, "drv-0001", 4.8, 1)

	o, r, err := f.d.CreateOrder(context.Background(), NewOrder{
		CustomerID: "cust-1",
		StoreID:    "store-1",
		Address:    "Calle Inexistente 1",
		Items: []domain.OrderItem{
			{ProductID: "p-1", Quantity: 1, UnitPrice: domain.Money{Amount: 100, Currency: "MXN"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeManual, r.Outcome)
	assert.Equal(t, ReasonGeocodingFailed, r.Reason)

	stored := f.order(t, o.ID)
	assert.True(t, stored.NeedsManualAssignment)
	assert.Equal(t, ReasonGeocodingFailed, stored.ManualReason)
	assert.Nil(t, f.active(t, o.ID))

	skipped, err := f.d.Dispatch(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, skipped.Outcome)

	// the operator fixes the address book and dispatches by hand
	f.geocoder.points["Calle Inexistente 1"] = dest
	manual, err := f.d.ManualDispatch(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, manual.Outcome)

	stored = f.order(t, o.ID)
	assert.False(t, stored.NeedsManualAssignment)
	require.NotNil(t, stored.Destination)
}

// The first driver lets the offer time out and the order moves on.
func TestOfferTimeout_ReoffersToNextDriver(t *testing.T) {
	t.Parallel()
	f := setup(t)
	first := f.addDriver(t, "drv-0001", 4.8, 1)
	second := f.addDriver(t, "drv-0002", 4.5, 3)

	o, r := f.createOrder(t)
	require.Equal(t, first.ID, r.Assignment.DriverID)

	f.clock.fire()

	history, err := f.store.Assignments().ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	byDriver := map[int64]domain.AssignmentStatus{}
	for _, a := range history {
		byDriver[a.DriverID] = a.Status
	}
	assert.Equal(t, domain.AssignmentRejected, byDriver[first.ID])
	assert.Equal(t, domain.AssignmentOffered, byDriver[second.ID])

	assert.True(t, f.driver(t, first.ID).Available)
	assert.False(t, f.driver(t, second.ID).Available)
	assert.Contains(t, f.notifier.to("drv-0001"), "Oferta expirada")
	assert.Contains(t, f.notifier.to("drv-0002"), "Nuevo pedido asignado")

	active := f.active(t, o.ID)
	require.NotNil(t, active)
	id, ok := f.d.offers.pending(o.ID)
	require.True(t, ok)
	assert.Equal(t, active.ID, id)

	// the first driver answering late changes nothing
	late, err := f.d.DriverAction(context.Background(), r.Assignment.ID, domain.AssignmentAccepted)
	require.NoError(t, err)
	assert.False(t, late.Changed)
	assert.Equal(t, domain.AssignmentRejected, late.Assignment.Status)
}

func TestDriverReject_ReassignsAndCapsAttempts(t *testing.T) {
	t.Parallel()
	f := setup(t, withConfig(func(c *Config) { c.MaxReassignmentAttempts = 1 }))
	a := f.addDriver(t, "drv-0001", 4.8, 1)
	b := f.addDriver(t, "drv-0002", 4.7, 2)
	c := f.addDriver(t, "drv-0003", 4.6, 3)

	o, r := f.createOrder(t)
	require.Equal(t, a.ID, r.Assignment.DriverID)

	res, err := f.d.DriverAction(context.Background(), r.Assignment.ID, domain.AssignmentRejected)
	require.NoError(t, err)
	require.True(t, res.Changed)
	second := f.active(t, o.ID)
	require.NotNil(t, second)
	assert.Equal(t, b.ID, second.DriverID)

	_, err = f.d.DriverAction(context.Background(), second.ID, domain.AssignmentRejected)
	require.NoError(t, err)

	stored := f.order(t, o.ID)
	assert.True(t, stored.NeedsManualAssignment)
	assert.Equal(t, ReasonMaxReassignments, stored.ManualReason)
	assert.Nil(t, f.active(t, o.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.outcomes.WithLabelValues(metrics.OutcomeEscalated)))

	manual, err := f.d.ManualDispatch(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, manual.Outcome)
	assert.Equal(t, c.ID, manual.Assignment.DriverID)
	assert.False(t, f.order(t, o.ID).NeedsManualAssignment)
}

func TestNoCandidate_RetriesThenEscalates(t *testing.T) {
	t.Parallel()
	f := setup(t)

	o, r := f.createOrder(t)
	require.Equal(t, OutcomeUnassigned, r.Outcome)
	require.Len(t, f.clock.active(), 1)
	assert.Equal(t, 20*time.Second, f.clock.active()[0].d)

	f.clock.fire()
	assert.False(t, f.order(t, o.ID).NeedsManualAssignment)
	require.Len(t, f.clock.active(), 1)

	f.clock.fire()
	stored := f.order(t, o.ID)
	assert.True(t, stored.NeedsManualAssignment)
	assert.Equal(t, ReasonNoCandidate, stored.ManualReason)
	assert.Empty(t, f.clock.active())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.outcomes.WithLabelValues(metrics.OutcomeNoCandidate)))
}

func TestOnDriverAvailable_DispatchesWaitingOrder(t *testing.T) {
	t.Parallel()
	f := setup(t)

	o, r := f.createOrder(t)
	require.Equal(t, OutcomeUnassigned, r.Outcome)

	drv := f.addDriver(t, "drv-0001", 4.8, 1)
	f.d.OnDriverAvailable(context.Background(), drv.ID)

	active := f.active(t, o.ID)
	require.NotNil(t, active)
	assert.Equal(t, drv.ID, active.DriverID)
	_, pending := f.d.retries.pending(o.ID)
	assert.False(t, pending)
}

func TestOnDriverAvailable_DoesNotCountMisses(t *testing.T) {
	t.Parallel()
	f := setup(t, withConfig(func(c *Config) { c.MaxNoCandidateRetries = 0 }))
	far := f.addDriver(t, "drv-0001", 4.8, 50)

	// the first miss already escalates with no retries allowed, so seed the
	// waiting order directly
	o := &domain.Order{
		ID: "ord-1", CustomerID: "cust-1", StoreID: "store-1", Address: "Reforma 222",
		Destination: &dest, Status: domain.OrderPending, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.Orders().Create(context.Background(), o))

	f.d.OnDriverAvailable(context.Background(), far.ID)
	f.d.OnDriverAvailable(context.Background(), far.ID)

	assert.False(t, f.order(t, o.ID).NeedsManualAssignment)
	assert.Empty(t, f.clock.active())
}

// The order is cancelled while the driver heads to the store.
func TestCancelOrder_FreesDriver(t *testing.T) {
	t.Parallel()
	f := setup(t)
	drv := f.addDriver(t, "drv-0001", 4.8, 1)
	ctx := context.Background()

	o, r := f.createOrder(t)
	_, err := f.d.DriverAction(ctx, r.Assignment.ID, domain.AssignmentAccepted)
	require.NoError(t, err)
	_, pending := f.d.offers.pending(o.ID)
	assert.False(t, pending)
	_, err = f.d.DriverAction(ctx, r.Assignment.ID, domain.AssignmentHeadingToStore)
	require.NoError(t, err)

	res, err := f.d.CancelOrder(ctx, o.ID, domain.ActorCustomer)
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.True(t, res.DriverFreed)
	assert.Equal(t, domain.OrderCancelled, res.Order.Status)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, domain.AssignmentSuperseded, res.Assignment.Status)

	assert.True(t, f.driver(t, drv.ID).Available)
	assert.Nil(t, f.active(t, o.ID))
	assert.Contains(t, f.tracker.forgets, o.ID)
	assert.Contains(t, f.notifier.to("drv-0001"), "Pedido cancelado")
	assert.Contains(t, f.notifier.to("cust-1"), "Pedido cancelado")

	tl, err := timeline.NewBuilder(f.store.Orders(), time.Second).Timeline(ctx, o.ID)
	require.NoError(t, err)
	last := tl[len(tl)-1]
	assert.Equal(t, timeline.StageCancelled, last.Stage)
	assert.True(t, last.Completed)
	assert.NotEmpty(t, f.emitter.on(realtime.OrderTopic(o.ID), realtime.KindTimeline))

	again, err := f.d.CancelOrder(ctx, o.ID, domain.ActorCustomer)
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestFullDelivery(t *testing.T) {
	t.Parallel()
	f := setup(t)
	drv := f.addDriver(t, "drv-0001", 4.8, 1)
	ctx := context.Background()

	o, r := f.createOrder(t)
	id := r.Assignment.ID
	_, err := f.d.DriverAction(ctx, id, domain.AssignmentAccepted)
	require.NoError(t, err)

	ready, err := f.d.ApplyStoreStatus(ctx, o.ID, domain.OrderReady)
	require.NoError(t, err)
	require.True(t, ready.Changed)
	assert.Contains(t, f.notifier.to("drv-0001"), "Pedido listo")

	for _, to := range []domain.AssignmentStatus{
		domain.AssignmentHeadingToStore,
		domain.AssignmentPickedUp,
		domain.AssignmentHeadingToCustomer,
		domain.AssignmentDelivered,
	} {
		res, err := f.d.DriverAction(ctx, id, to)
		require.NoError(t, err, to)
		require.True(t, res.Changed, to)
	}

	assert.Equal(t, domain.OrderDelivered, f.order(t, o.ID).Status)
	d := f.driver(t, drv.ID)
	assert.True(t, d.Available)
	assert.Equal(t, 1, d.DeliveriesCount)
	assert.Contains(t, f.tracker.forgets, o.ID)
	assert.Equal(t, []string{"Pedido confirmado", "Tu pedido va en camino", "Pedido entregado"}, f.notifier.to("cust-1"))
}

func TestExpireOverdueOffers(t *testing.T) {
	t.Parallel()
	f := setup(t)
	first := f.addDriver(t, "drv-0001", 4.8, 1)
	f.addDriver(t, "drv-0002", 4.5, 3)
	ctx := context.Background()

	o, _ := f.createOrder(t)

	n, err := f.d.ExpireOverdueOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// a restart lost the timer; the sweeper sees the deadline pass
	f.d.offers.stopAll()
	f.d.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

	n, err = f.d.ExpireOverdueOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active := f.active(t, o.ID)
	require.NotNil(t, active)
	assert.NotEqual(t, first.ID, active.DriverID)
}

func TestClose_TimersBecomeNoops(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.addDriver(t, "drv-0001", 4.8, 1)

	o, r := f.createOrder(t)
	f.d.Close()
	f.d.expireByTimer(r.Assignment.ID)

	active := f.active(t, o.ID)
	require.NotNil(t, active)
	assert.Equal(t, domain.AssignmentOffered, active.Status)
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()
	f := setup(t)

	_, err := f.d.Dispatch(context.Background(), " ")
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.d.Dispatch(context.Background(), "missing")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.d.ManualDispatch(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDispatch_SkipsAssignedOrder(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.addDriver(t, "drv-0001", 4.8, 1)
	f.addDriver(t, "drv-0002", 4.8, 2)

	o, r := f.createOrder(t)
	again, err := f.d.Dispatch(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, again.Outcome)
	require.NotNil(t, again.Assignment)
	assert.Equal(t, r.Assignment.ID, again.Assignment.ID)
}

func TestManualDispatch_TerminalOrderConflicts(t *testing.T) {
	t.Parallel()
	f := setup(t)
	f.addDriver(t, "drv-0001", 4.8, 1)

	o, _ := f.createOrder(t)
	_, err := f.d.CancelOrder(context.Background(), o.ID, domain.ActorCustomer)
	require.NoError(t, err)

	_, err = f.d.ManualDispatch(context.Background(), o.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

// The offer timer fires in a process that never saw the driver accept.
func TestExpire_AfterAcceptIsNoop(t *testing.T) {
	t.Parallel()
	f := setup(t)
	drv := f.addDriver(t, "drv-0001", 4.8, 1)
	f.addDriver(t, "drv-0002", 4.5, 3)
	rec := testlog.New()
	f.d.Logger = rec.Logger()
	ctx := context.Background()

	o, r := f.createOrder(t)
	_, err := f.d.DriverAction(ctx, r.Assignment.ID, domain.AssignmentAccepted)
	require.NoError(t, err)

	assert.False(t, f.d.expire(ctx, r.Assignment.ID))
	assert.NotContains(t, rec.Events(), "offer_expiry_failed")
	assert.NotContains(t, rec.Events(), "offer_expired")

	active := f.active(t, o.ID)
	require.NotNil(t, active)
	assert.Equal(t, r.Assignment.ID, active.ID)
	assert.Equal(t, domain.AssignmentAccepted, active.Status)
	assert.False(t, f.driver(t, drv.ID).Available)
	assert.NotContains(t, f.notifier.to("drv-0001"), "Oferta expirada")

	history, err := f.store.Assignments().ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// race runs a and b at the same time.
func race(a, b func()) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, fn := range []func(){a, b} {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			<-start
			fn()
		}(fn)
	}
	close(start)
	wg.Wait()
}

func TestCancelRacesDelivery(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		f := setup(t)
		drv := f.addDriver(t, "drv-0001", 4.8, 1)
		ctx := context.Background()

		o, r := f.createOrder(t)
		id := r.Assignment.ID
		for _, to := range []domain.AssignmentStatus{
			domain.AssignmentAccepted,
			domain.AssignmentHeadingToStore,
			domain.AssignmentPickedUp,
			domain.AssignmentHeadingToCustomer,
		} {
			_, err := f.d.DriverAction(ctx, id, to)
			require.NoError(t, err)
		}

		var (
			cancelRes   order.CancelResult
			deliverRes  domain.TransitionResult
			cancelErr   error
			deliveryErr error
		)
		race(
			func() { cancelRes, cancelErr = f.d.CancelOrder(ctx, o.ID, domain.ActorCustomer) },
			func() { deliverRes, deliveryErr = f.d.DriverAction(ctx, id, domain.AssignmentDelivered) },
		)
		require.NoError(t, cancelErr)
		require.NoError(t, deliveryErr)
		require.NotEqual(t, cancelRes.Changed, deliverRes.Changed, "exactly one side wins")

		d := f.driver(t, drv.ID)
		assert.True(t, d.Available)
		assert.Nil(t, f.active(t, o.ID))

		final := f.order(t, o.ID)
		if cancelRes.Changed {
			assert.Equal(t, domain.OrderCancelled, final.Status)
			assert.Zero(t, d.DeliveriesCount)
		} else {
			assert.Equal(t, domain.OrderDelivered, final.Status)
			assert.Equal(t, 1, d.DeliveriesCount)
		}
	}
}

func TestCancelRacesDispatch(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		f := setup(t)
		drv := f.addDriver(t, "drv-0001", 4.8, 1)
		ctx := context.Background()

		// created while nobody is free, so the order waits for a driver
		_, err := f.store.Drivers().SetAvailability(ctx, drv.ID, false)
		require.NoError(t, err)
		o, r := f.createOrder(t)
		require.Equal(t, OutcomeUnassigned, r.Outcome)
		_, err = f.store.Drivers().SetAvailability(ctx, drv.ID, true)
		require.NoError(t, err)

		var (
			cancelRes   order.CancelResult
			dispatchRes Result
			cancelErr   error
			dispatchErr error
		)
		race(
			func() { cancelRes, cancelErr = f.d.CancelOrder(ctx, o.ID, domain.ActorCustomer) },
			func() { dispatchRes, dispatchErr = f.d.Dispatch(ctx, o.ID) },
		)
		require.NoError(t, cancelErr)
		require.NoError(t, dispatchErr)
		require.True(t, cancelRes.Changed)
		assert.Contains(t, []Outcome{OutcomeAssigned, OutcomeSkipped}, dispatchRes.Outcome)
		if dispatchRes.Outcome == OutcomeAssigned {
			require.NotNil(t, cancelRes.Assignment, "cancel must supersede the offer it lost to")
			assert.Equal(t, domain.AssignmentSuperseded, cancelRes.Assignment.Status)
		}

		assert.Equal(t, domain.OrderCancelled, f.order(t, o.ID).Status)
		assert.Nil(t, f.active(t, o.ID))
		assert.True(t, f.driver(t, drv.ID).Available)

		// a late offer timer finds nothing to expire
		f.clock.fire()
		assert.Nil(t, f.active(t, o.ID))
		assert.True(t, f.driver(t, drv.ID).Available)
	}
}
