package domain

import (
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
)

// OrderStatus is the customer-facing lifecycle of an order.
type OrderStatus string

// List of possible order statuses
const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderReady          OrderStatus = "ready"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// orderTransitions is the order state diagram as code.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderPreparing, OrderReady, OrderOutForDelivery, OrderCancelled},
	OrderPreparing:      {OrderReady, OrderOutForDelivery, OrderCancelled},
	OrderReady:          {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered, OrderCancelled},
}

// orderRank orders the forward path; cancelled is off the path.
var orderRank = map[OrderStatus]int{
	OrderPending:        0,
	OrderConfirmed:      1,
	OrderPreparing:      2,
	OrderReady:          3,
	OrderOutForDelivery: 4,
	OrderDelivered:      5,
}

// Valid checks if the OrderStatus is known.
func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok || s == OrderCancelled
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Reached reports whether s is at or beyond target on the forward path.
func (s OrderStatus) Reached(target OrderStatus) bool {
	r, ok := orderRank[s]
	if !ok {
		return false
	}
	t, ok := orderRank[target]
	return ok && r >= t
}

// ValidateOrderTransition rejects any order transition missing from the table.
func ValidateOrderTransition(from, to OrderStatus) error {
	for _, next := range orderTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("order %s -> %s: %w", from, to, apperr.ErrInvalidTransition)
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

// Order is a customer purchase with a delivery destination.
type Order struct {
	ID                    string
	CustomerID            string
	StoreID               string
	Address               string
	Destination           *Point
	Status                OrderStatus
	Version               int
	Subtotal              Money
	DeliveryFee           Money
	Total                 Money
	Items                 []OrderItem
	NeedsManualAssignment bool
	ManualReason          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
