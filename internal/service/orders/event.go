package orders

import "time"

// Event is a status change published by the ordering system. Recognised
// statuses: created, confirmed, preparing, ready, canceled, cancelled, deleted.
// Actor names who caused a cancellation; empty means the store.
type Event struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
