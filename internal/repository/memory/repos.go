package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

// OrderRepo is the memory order repository.
type OrderRepo struct{ s *Store }

// Get - returns order by its ID together with its items.
func (r *OrderRepo) Get(_ context.Context, id string) (o *domain.Order, _ error) {
	r.s.read(func(st *state) { o = st.order(id) })
	return o, nil
}

// Create - inserts the order row.
func (r *OrderRepo) Create(_ context.Context, o *domain.Order) (err error) {
	r.s.read(func(st *state) {
		if _, ok := st.orders[o.ID]; ok {
			err = apperr.ErrConflict
			return
		}
		o.Version = 1
		o.UpdatedAt = o.CreatedAt
		stored := *o
		stored.Items = nil
		st.orders[o.ID] = stored
	})
	return err
}

// InsertItems stores all line items of an order.
func (r *OrderRepo) InsertItems(_ context.Context, orderID string, items []domain.OrderItem) (err error) {
	r.s.read(func(st *state) {
		o, ok := st.orders[orderID]
		if !ok {
			err = fmt.Errorf("insert order %q items: %w", orderID, apperr.ErrNotFound)
			return
		}
		for i, it := range items {
			if it.Quantity <= 0 || it.UnitPrice.Amount < 0 {
				err = fmt.Errorf("insert order %q item %d: %w", orderID, i, apperr.ErrInvalid)
				return
			}
		}
		o.Items = append([]domain.OrderItem(nil), items...)
		st.orders[orderID] = o
	})
	return err
}

// Delete removes the order and everything hanging off it.
func (r *OrderRepo) Delete(_ context.Context, id string) (err error) {
	r.s.read(func(st *state) {
		if _, ok := st.orders[id]; !ok {
			err = fmt.Errorf("order %q: %w", id, apperr.ErrNotFound)
			return
		}
		delete(st.orders, id)
		for aid, a := range st.assignments {
			if a.OrderID == id {
				delete(st.assignments, aid)
			}
		}
		kept := st.events[:0:0]
		for _, e := range st.events {
			if e.OrderID != id {
				kept = append(kept, e)
			}
		}
		st.events = kept
	})
	return err
}

// SetDestination stores the geocoded coordinates.
func (r *OrderRepo) SetDestination(_ context.Context, id string, p domain.Point) error {
	return r.update(id, func(o *domain.Order) { o.Destination = &p })
}

// SetManual raises or clears the needs_manual_assignment flag.
func (r *OrderRepo) SetManual(_ context.Context, id string, manual bool, reason string) error {
	return r.update(id, func(o *domain.Order) {
		o.NeedsManualAssignment = manual
		o.ManualReason = reason
	})
}

func (r *OrderRepo) update(id string, fn func(o *domain.Order)) (err error) {
	r.s.read(func(st *state) {
		o, ok := st.orders[id]
		if !ok {
			err = fmt.Errorf("order %q: %w", id, apperr.ErrNotFound)
			return
		}
		fn(&o)
		o.UpdatedAt = time.Now()
		st.orders[id] = o
	})
	return err
}

// ListAwaitingDriver returns geocoded, non-manual, non-terminal orders that
// have no active assignment, oldest first.
func (r *OrderRepo) ListAwaitingDriver(_ context.Context, limit int) (out []domain.Order, _ error) {
	r.s.read(func(st *state) {
		for id, o := range st.orders {
			if o.NeedsManualAssignment || o.Destination == nil || o.Status.Terminal() ||
				o.Status == domain.OrderOutForDelivery {
				continue
			}
			if st.activeBy(func(a domain.Assignment) bool { return a.OrderID == id }) != nil {
				continue
			}
			out = append(out, *st.order(id))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListEvents returns the status history of an order in occurrence order.
func (r *OrderRepo) ListEvents(_ context.Context, orderID string) (out []domain.StatusEvent, _ error) {
	r.s.read(func(st *state) {
		for _, e := range st.events {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DriverRepo is the memory driver repository.
type DriverRepo struct{ s *Store }

// Get - returns driver by its ID.
func (r *DriverRepo) Get(_ context.Context, id int64) (d *domain.Driver, _ error) {
	r.s.read(func(st *state) { d = st.driver(id) })
	return d, nil
}

// List returns drivers ordered by id.
func (r *DriverRepo) List(_ context.Context) (out []domain.Driver, _ error) {
	r.s.read(func(st *state) {
		out = make([]domain.Driver, 0, len(st.drivers))
		for _, d := range st.drivers {
			out = append(out, *copyDriver(d))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create - creates a new driver and fills its ID.
func (r *DriverRepo) Create(_ context.Context, d *domain.Driver) (err error) {
	r.s.read(func(st *state) {
		for _, existing := range st.drivers {
			if existing.Phone == d.Phone {
				err = apperr.ErrConflict
				return
			}
		}
		st.nextDriverID++
		d.ID = st.nextDriverID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}
		st.drivers[d.ID] = *copyDriver(*d)
	})
	return err
}

// SetAvailability applies the driver's own availability toggle.
func (r *DriverRepo) SetAvailability(_ context.Context, id int64, available bool) (out *domain.Driver, _ error) {
	r.s.read(func(st *state) {
		d, ok := st.drivers[id]
		if !ok {
			return
		}
		if available {
			d.Paused = false
			d.Available = d.Active &&
				st.activeBy(func(a domain.Assignment) bool { return a.DriverID == id }) == nil
		} else {
			d.Paused = true
			d.Available = false
		}
		st.drivers[id] = d
		out = copyDriver(d)
	})
	return out, nil
}

// UpdatePosition stores the position only if it is newer than the current one.
func (r *DriverRepo) UpdatePosition(_ context.Context, id int64, p domain.Point, at time.Time) (updated bool, _ error) {
	r.s.read(func(st *state) {
		d, ok := st.drivers[id]
		if !ok || (d.PositionAt != nil && !d.PositionAt.Before(at)) {
			return
		}
		d.Position = &p
		d.PositionAt = &at
		st.drivers[id] = d
		updated = true
	})
	return updated, nil
}

// ListEligible returns positioned drivers passing the rating and flag predicates.
func (r *DriverRepo) ListEligible(_ context.Context, q domain.EligibilityQuery) (out []domain.Candidate, _ error) {
	excluded := make(map[int64]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}
	r.s.read(func(st *state) {
		for id, d := range st.drivers {
			if _, skip := excluded[id]; skip || d.Position == nil || d.Rating < q.MinRating {
				continue
			}
			if q.RequireActive && !d.Active {
				continue
			}
			if q.RequireAvailable && (!d.Available || d.Paused) {
				continue
			}
			recent := 0
			for _, a := range st.assignments {
				if a.DriverID == id && !a.OfferedAt.Before(q.RecentSince) {
					recent++
				}
			}
			out = append(out, domain.Candidate{Driver: *copyDriver(d), RecentAssignments: recent})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Driver.ID < out[j].Driver.ID })
	return out, nil
}

// AssignmentRepo is the memory assignment repository.
type AssignmentRepo struct{ s *Store }

// Get - returns assignment by its ID.
func (r *AssignmentRepo) Get(_ context.Context, id int64) (out *domain.Assignment, _ error) {
	r.s.read(func(st *state) {
		if a, ok := st.assignments[id]; ok {
			out = &a
		}
	})
	return out, nil
}

// GetActiveByDriver returns the driver's non-terminal assignment, or nil.
func (r *AssignmentRepo) GetActiveByDriver(_ context.Context, driverID int64) (out *domain.Assignment, _ error) {
	r.s.read(func(st *state) {
		out = st.activeBy(func(a domain.Assignment) bool { return a.DriverID == driverID })
	})
	return out, nil
}

// GetActiveByOrder returns the order's non-terminal assignment, or nil.
func (r *AssignmentRepo) GetActiveByOrder(_ context.Context, orderID string) (out *domain.Assignment, _ error) {
	r.s.read(func(st *state) {
		out = st.activeBy(func(a domain.Assignment) bool { return a.OrderID == orderID })
	})
	return out, nil
}

// ListByOrder returns every assignment of an order, oldest first.
func (r *AssignmentRepo) ListByOrder(_ context.Context, orderID string) (out []domain.Assignment, _ error) {
	r.s.read(func(st *state) {
		for _, a := range st.assignments {
			if a.OrderID == orderID {
				out = append(out, a)
			}
		}
	})
	sortAssignments(out, func(a domain.Assignment) time.Time { return a.OfferedAt })
	return out, nil
}

// ListExpiredOffers returns offers still waiting for an answer past their deadline.
func (r *AssignmentRepo) ListExpiredOffers(_ context.Context, now time.Time, limit int) (out []domain.Assignment, _ error) {
	r.s.read(func(st *state) {
		for _, a := range st.assignments {
			if a.Status == domain.AssignmentOffered && !a.OfferExpiresAt.After(now) {
				out = append(out, a)
			}
		}
	})
	sortAssignments(out, func(a domain.Assignment) time.Time { return a.OfferExpiresAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortAssignments(as []domain.Assignment, key func(domain.Assignment) time.Time) {
	sort.Slice(as, func(i, j int) bool {
		ki, kj := key(as[i]), key(as[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return as[i].ID < as[j].ID
	})
}

// LocationRepo is the memory ping log.
type LocationRepo struct{ s *Store }

// AppendPing inserts a ping and fills its ID.
func (r *LocationRepo) AppendPing(_ context.Context, p *domain.LocationPing) (err error) {
	r.s.read(func(st *state) {
		if _, ok := st.drivers[p.DriverID]; !ok {
			err = fmt.Errorf("append ping for driver %d: %w", p.DriverID, apperr.ErrNotFound)
			return
		}
		st.nextPingID++
		p.ID = st.nextPingID
		st.pings = append(st.pings, *p)
	})
	return err
}

// LatestPing returns the most recent ping of a driver, or nil.
func (r *LocationRepo) LatestPing(_ context.Context, driverID int64) (out *domain.LocationPing, _ error) {
	r.s.read(func(st *state) {
		for i := range st.pings {
			p := st.pings[i]
			if p.DriverID != driverID {
				continue
			}
			if out == nil || p.RecordedAt.After(out.RecordedAt) ||
				(p.RecordedAt.Equal(out.RecordedAt) && p.ID > out.ID) {
				out = &p
			}
		}
	})
	return out, nil
}
