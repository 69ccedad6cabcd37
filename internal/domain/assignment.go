package domain

import (
	"fmt"
	"strconv"
	"time"

	"courier-dispatch/internal/apperr"
)

// AssignmentStatus is the lifecycle of a driver's work on one order.
type AssignmentStatus string

// List of possible assignment statuses
const (
	AssignmentOffered           AssignmentStatus = "asignado"
	AssignmentAccepted          AssignmentStatus = "aceptado"
	AssignmentHeadingToStore    AssignmentStatus = "en_camino_tienda"
	AssignmentPickedUp          AssignmentStatus = "recogido"
	AssignmentHeadingToCustomer AssignmentStatus = "en_camino_cliente"
	AssignmentDelivered         AssignmentStatus = "entregado"
	AssignmentRejected          AssignmentStatus = "rechazado"
	AssignmentSuperseded        AssignmentStatus = "superseded"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentOffered:           {AssignmentAccepted, AssignmentRejected, AssignmentSuperseded},
	AssignmentAccepted:          {AssignmentHeadingToStore, AssignmentSuperseded},
	AssignmentHeadingToStore:    {AssignmentPickedUp, AssignmentSuperseded},
	AssignmentPickedUp:          {AssignmentHeadingToCustomer, AssignmentSuperseded},
	AssignmentHeadingToCustomer: {AssignmentDelivered, AssignmentSuperseded},
}

// NonTerminalAssignmentStatuses lists every status that keeps an order bound to a driver.
var NonTerminalAssignmentStatuses = []AssignmentStatus{
	AssignmentOffered,
	AssignmentAccepted,
	AssignmentHeadingToStore,
	AssignmentPickedUp,
	AssignmentHeadingToCustomer,
}

// Valid checks if the AssignmentStatus is known.
func (s AssignmentStatus) Valid() bool {
	if _, ok := assignmentTransitions[s]; ok {
		return true
	}
	return s.Terminal()
}

// Terminal reports whether the assignment no longer binds its driver.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentDelivered, AssignmentRejected, AssignmentSuperseded:
		return true
	default:
		return false
	}
}

// ValidateAssignmentTransition rejects any assignment transition missing from the table.
func ValidateAssignmentTransition(from, to AssignmentStatus) error {
	for _, next := range assignmentTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("assignment %s -> %s: %w", from, to, apperr.ErrInvalidTransition)
}

// OrderStatusFor returns the order status an assignment transition drives the
// order to, if any.
func OrderStatusFor(s AssignmentStatus) (OrderStatus, bool) {
	switch s {
	case AssignmentAccepted:
		return OrderConfirmed, true
	case AssignmentPickedUp:
		return OrderOutForDelivery, true
	case AssignmentDelivered:
		return OrderDelivered, true
	default:
		return "", false
	}
}

// Assignment binds one order to one driver.
type Assignment struct {
	ID             int64
	OrderID        string
	DriverID       int64
	Status         AssignmentStatus
	Version        int
	DistanceKm     float64
	ETAMinutes     float64
	Score          float64
	OfferedAt      time.Time
	OfferExpiresAt time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
	ElapsedSeconds *int64
}

// AssignResult is returned to callers after a successful selection.
type AssignResult struct {
	Assignment Assignment
	Driver     Driver
}

// TransitionResult reports the outcome of a requested assignment transition.
// Changed is false when the request was a no-op (already applied or lost a race
// to another terminal transition).
type TransitionResult struct {
	Assignment  Assignment
	Order       Order
	Changed     bool
	OrderMoved  bool
	DriverFreed bool
}

// EntityID is the assignment identity as recorded in the status event log.
func (a Assignment) EntityID() string {
	return strconv.FormatInt(a.ID, 10)
}
