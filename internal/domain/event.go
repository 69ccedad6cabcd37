package domain

import "time"

// EventEntity names the aggregate a status event belongs to.
type EventEntity string

// List of event entities
const (
	EntityOrder      EventEntity = "order"
	EntityAssignment EventEntity = "assignment"
)

// Actors recorded on status events.
const (
	ActorSystem   = "system"
	ActorDriver   = "driver"
	ActorCustomer = "customer"
	ActorStore    = "store"
	ActorOperator = "operator"
)

// StatusEvent is one recorded status transition of an order or one of its assignments.
type StatusEvent struct {
	ID         int64
	OrderID    string
	Entity     EventEntity
	EntityID   string
	FromStatus string
	ToStatus   string
	Actor      string
	CreatedAt  time.Time
}

// TimelineEvent is a customer-readable stage derived from status events.
type TimelineEvent struct {
	Stage     string     `json:"estado"`
	Message   string     `json:"mensaje"`
	Completed bool       `json:"completado"`
	At        *time.Time `json:"fecha,omitempty"`
}
