package apperr

import "errors"

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNoCandidate signals that no driver could be claimed for an order.
var ErrNoCandidate = errors.New("no candidate driver")

// ErrUnavailable is returned by gateways whose backing provider is not configured or down.
var ErrUnavailable = errors.New("provider unavailable")
