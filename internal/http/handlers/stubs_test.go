package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/service/dispatch"
	"courier-dispatch/internal/service/order"
	"courier-dispatch/internal/service/tracking"
)

type stubOrders struct {
	createFn func(ctx context.Context, n dispatch.NewOrder) (*domain.Order, dispatch.Result, error)
	orderFn  func(ctx context.Context, id string) (*domain.Order, error)
	cancelFn func(ctx context.Context, id, actor string) (order.CancelResult, error)
	storeFn  func(ctx context.Context, id string, to domain.OrderStatus) (order.StoreResult, error)
	manualFn func(ctx context.Context, id string) (dispatch.Result, error)
}

func (s *stubOrders) CreateOrder(ctx context.Context, n dispatch.NewOrder) (*domain.Order, dispatch.Result, error) {
	if s.createFn == nil {
		panic("CreateOrder not expected in this test")
	}
	return s.createFn(ctx, n)
}

func (s *stubOrders) Order(ctx context.Context, id string) (*domain.Order, error) {
	if s.orderFn == nil {
		panic("Order not expected in this test")
	}
	return s.orderFn(ctx, id)
}

func (s *stubOrders) CancelOrder(ctx context.Context, id, actor string) (order.CancelResult, error) {
	if s.cancelFn == nil {
		panic("CancelOrder not expected in this test")
	}
	return s.cancelFn(ctx, id, actor)
}

func (s *stubOrders) ApplyStoreStatus(ctx context.Context, id string, to domain.OrderStatus) (order.StoreResult, error) {
	if s.storeFn == nil {
		panic("ApplyStoreStatus not expected in this test")
	}
	return s.storeFn(ctx, id, to)
}

func (s *stubOrders) ManualDispatch(ctx context.Context, id string) (dispatch.Result, error) {
	if s.manualFn == nil {
		panic("ManualDispatch not expected in this test")
	}
	return s.manualFn(ctx, id)
}

type stubAssignments struct {
	actionFn func(ctx context.Context, id int64, to domain.AssignmentStatus) (domain.TransitionResult, error)
}

func (s *stubAssignments) DriverAction(ctx context.Context, id int64, to domain.AssignmentStatus) (domain.TransitionResult, error) {
	if s.actionFn == nil {
		panic("DriverAction not expected in this test")
	}
	return s.actionFn(ctx, id, to)
}

type stubDrivers struct {
	createFn func(ctx context.Context, d *domain.Driver) error
	getFn    func(ctx context.Context, id int64) (*domain.Driver, error)
	listFn   func(ctx context.Context) ([]domain.Driver, error)
	availFn  func(ctx context.Context, id int64, available bool) (*domain.Driver, error)
}

func (s *stubDrivers) Create(ctx context.Context, d *domain.Driver) error {
	if s.createFn == nil {
		panic("Create not expected in this test")
	}
	return s.createFn(ctx, d)
}

func (s *stubDrivers) Get(ctx context.Context, id int64) (*domain.Driver, error) {
	if s.getFn == nil {
		panic("Get not expected in this test")
	}
	return s.getFn(ctx, id)
}

func (s *stubDrivers) List(ctx context.Context) ([]domain.Driver, error) {
	if s.listFn == nil {
		panic("List not expected in this test")
	}
	return s.listFn(ctx)
}

func (s *stubDrivers) SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error) {
	if s.availFn == nil {
		panic("SetAvailability not expected in this test")
	}
	return s.availFn(ctx, id, available)
}

type stubTracking struct {
	ingestFn   func(ctx context.Context, p domain.LocationPing) (tracking.IngestResult, error)
	positionFn func(ctx context.Context, driverID int64) (*cache.Position, error)
	etaFn      func(ctx context.Context, orderID string) (domain.ETA, error)
}

func (s *stubTracking) Ingest(ctx context.Context, p domain.LocationPing) (tracking.IngestResult, error) {
	if s.ingestFn == nil {
		panic("Ingest not expected in this test")
	}
	return s.ingestFn(ctx, p)
}

func (s *stubTracking) Position(ctx context.Context, driverID int64) (*cache.Position, error) {
	if s.positionFn == nil {
		return nil, nil
	}
	return s.positionFn(ctx, driverID)
}

func (s *stubTracking) CurrentETA(ctx context.Context, orderID string) (domain.ETA, error) {
	if s.etaFn == nil {
		panic("CurrentETA not expected in this test")
	}
	return s.etaFn(ctx, orderID)
}

type stubTimeline struct {
	fn func(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

func (s *stubTimeline) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	return s.fn(ctx, orderID)
}

// withParams attaches chi URL params the way the router would.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
