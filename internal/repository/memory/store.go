// Package memory is an in-process storage backend with the same semantics
// as the postgres repositories. Transactions write in place and keep the
// prior value of every row they touch, so a failed one is undone row by row.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/ports/dispatchtx"
)

type state struct {
	orders      map[string]domain.Order
	drivers     map[int64]domain.Driver
	assignments map[int64]domain.Assignment
	pings       []domain.LocationPing
	events      []domain.StatusEvent

	nextDriverID     int64
	nextAssignmentID int64
	nextPingID       int64
	nextEventID      int64
}

func newState() *state {
	return &state{
		orders:      make(map[string]domain.Order),
		drivers:     make(map[int64]domain.Driver),
		assignments: make(map[int64]domain.Assignment),
	}
}

// Store is the shared state behind every memory repository.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// Orders returns the order repository view.
func (s *Store) Orders() *OrderRepo { return &OrderRepo{s: s} }

// Drivers returns the driver repository view.
func (s *Store) Drivers() *DriverRepo { return &DriverRepo{s: s} }

// Assignments returns the assignment repository view.
func (s *Store) Assignments() *AssignmentRepo { return &AssignmentRepo{s: s} }

// Locations returns the ping log view.
func (s *Store) Locations() *LocationRepo { return &LocationRepo{s: s} }

// Dispatch returns the transaction runner.
func (s *Store) Dispatch() *DispatchRepo { return &DispatchRepo{s: s} }

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// DispatchRepo runs transactional work against the Store.
type DispatchRepo struct{ s *Store }

var _ dispatchtx.Runner = (*DispatchRepo)(nil)

// WithTx runs fn under the store lock. Transactions are serialized; an error
// or a panic in fn rolls back everything fn wrote.
func (r *DispatchRepo) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx := newTxRepo(r.s.st)
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// TxRepo is the transactional view of the state.
type TxRepo struct {
	st *state
	// saved holds the counters and log slices as of begin.
	saved state

	orders      map[string]*domain.Order
	drivers     map[int64]*domain.Driver
	assignments map[int64]*domain.Assignment
}

func newTxRepo(st *state) *TxRepo {
	return &TxRepo{
		st:          st,
		saved:       *st,
		orders:      make(map[string]*domain.Order),
		drivers:     make(map[int64]*domain.Driver),
		assignments: make(map[int64]*domain.Assignment),
	}
}

// touchOrder journals the row before its first write. A nil entry means the
// row did not exist before the transaction.
func (r *TxRepo) touchOrder(id string) {
	if _, seen := r.orders[id]; seen {
		return
	}
	if o, ok := r.st.orders[id]; ok {
		r.orders[id] = &o
	} else {
		r.orders[id] = nil
	}
}

func (r *TxRepo) touchDriver(id int64) {
	if _, seen := r.drivers[id]; seen {
		return
	}
	if d, ok := r.st.drivers[id]; ok {
		r.drivers[id] = &d
	} else {
		r.drivers[id] = nil
	}
}

func (r *TxRepo) touchAssignment(id int64) {
	if _, seen := r.assignments[id]; seen {
		return
	}
	if a, ok := r.st.assignments[id]; ok {
		r.assignments[id] = &a
	} else {
		r.assignments[id] = nil
	}
}

func (r *TxRepo) rollback() {
	for id, o := range r.orders {
		if o == nil {
			delete(r.st.orders, id)
			continue
		}
		r.st.orders[id] = *o
	}
	for id, d := range r.drivers {
		if d == nil {
			delete(r.st.drivers, id)
			continue
		}
		r.st.drivers[id] = *d
	}
	for id, a := range r.assignments {
		if a == nil {
			delete(r.st.assignments, id)
			continue
		}
		r.st.assignments[id] = *a
	}
	*r.st = r.saved
}

var _ dispatchtx.Repository = (*TxRepo)(nil)

// GetOrder - get order by ID.
func (r *TxRepo) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return r.st.order(id), nil
}

// UpdateOrderStatus - compare-and-set on the order version.
func (r *TxRepo) UpdateOrderStatus(_ context.Context, id string, version int, to domain.OrderStatus, at time.Time) (bool, error) {
	o, ok := r.st.orders[id]
	if !ok || o.Version != version {
		return false, nil
	}
	r.touchOrder(id)
	o.Status = to
	o.Version++
	o.UpdatedAt = at
	r.st.orders[id] = o
	return true, nil
}

// GetDriver - get driver by ID.
func (r *TxRepo) GetDriver(_ context.Context, id int64) (*domain.Driver, error) {
	return r.st.driver(id), nil
}

// ClaimDriver - takes a free driver out of the pool.
func (r *TxRepo) ClaimDriver(_ context.Context, id int64, _ time.Time) (bool, error) {
	d, ok := r.st.drivers[id]
	if !ok || !d.Active || !d.Available || d.Paused {
		return false, nil
	}
	r.touchDriver(id)
	d.Available = false
	r.st.drivers[id] = d
	return true, nil
}

// ReleaseDriver - returns the driver to the pool unless inactive or paused.
func (r *TxRepo) ReleaseDriver(_ context.Context, id int64, _ time.Time) (bool, error) {
	d, ok := r.st.drivers[id]
	if !ok || !d.Active || d.Paused || d.Available {
		return false, nil
	}
	r.touchDriver(id)
	d.Available = true
	r.st.drivers[id] = d
	return true, nil
}

// IncrementDeliveries - bumps the completed delivery counter.
func (r *TxRepo) IncrementDeliveries(_ context.Context, id int64) error {
	if d, ok := r.st.drivers[id]; ok {
		r.touchDriver(id)
		d.DeliveriesCount++
		r.st.drivers[id] = d
	}
	return nil
}

// GetAssignment - get assignment by ID.
func (r *TxRepo) GetAssignment(_ context.Context, id int64) (*domain.Assignment, error) {
	if a, ok := r.st.assignments[id]; ok {
		return &a, nil
	}
	return nil, nil
}

// GetActiveAssignmentByOrder - the order's non-terminal assignment, or nil.
func (r *TxRepo) GetActiveAssignmentByOrder(_ context.Context, orderID string) (*domain.Assignment, error) {
	return r.st.activeBy(func(a domain.Assignment) bool { return a.OrderID == orderID }), nil
}

// InsertAssignment - insert a new assignment; a second active one per order is a conflict.
func (r *TxRepo) InsertAssignment(_ context.Context, a *domain.Assignment) error {
	if _, ok := r.st.orders[a.OrderID]; !ok {
		return fmt.Errorf("insert assignment: order %q: %w", a.OrderID, apperr.ErrNotFound)
	}
	if r.st.activeBy(func(x domain.Assignment) bool { return x.OrderID == a.OrderID }) != nil {
		return fmt.Errorf("order %q already has an active assignment: %w", a.OrderID, apperr.ErrConflict)
	}
	r.st.nextAssignmentID++
	a.ID = r.st.nextAssignmentID
	a.Version = 1
	a.UpdatedAt = a.OfferedAt
	r.touchAssignment(a.ID)
	r.st.assignments[a.ID] = *a
	return nil
}

// UpdateAssignmentStatus - compare-and-set on the assignment version.
func (r *TxRepo) UpdateAssignmentStatus(
	_ context.Context, id int64, version int, to domain.AssignmentStatus, at time.Time,
) (bool, error) {
	a, ok := r.st.assignments[id]
	if !ok || a.Version != version {
		return false, nil
	}
	r.touchAssignment(id)
	a.Status = to
	a.Version++
	a.UpdatedAt = at
	if to.Terminal() {
		finished := at
		a.FinishedAt = &finished
	}
	if to == domain.AssignmentDelivered {
		elapsed := int64(at.Sub(a.OfferedAt) / time.Second)
		a.ElapsedSeconds = &elapsed
	}
	r.st.assignments[id] = a
	return true, nil
}

// AppendEvent - records a status transition.
func (r *TxRepo) AppendEvent(_ context.Context, e *domain.StatusEvent) error {
	r.st.nextEventID++
	e.ID = r.st.nextEventID
	r.st.events = append(r.st.events, *e)
	return nil
}

func (s *state) order(id string) *domain.Order {
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	if o.Destination != nil {
		p := *o.Destination
		o.Destination = &p
	}
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o
}

func (s *state) driver(id int64) *domain.Driver {
	d, ok := s.drivers[id]
	if !ok {
		return nil
	}
	return copyDriver(d)
}

func copyDriver(d domain.Driver) *domain.Driver {
	if d.Position != nil {
		p := *d.Position
		d.Position = &p
	}
	if d.PositionAt != nil {
		t := *d.PositionAt
		d.PositionAt = &t
	}
	return &d
}

func (s *state) activeBy(match func(domain.Assignment) bool) *domain.Assignment {
	var found *domain.Assignment
	for _, a := range s.assignments {
		if a.Status.Terminal() || !match(a) {
			continue
		}
		if found == nil || a.OfferedAt.After(found.OfferedAt) {
			a := a
			found = &a
		}
	}
	return found
}
