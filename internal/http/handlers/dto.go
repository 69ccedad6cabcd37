package handlers

import (
	"time"

	"courier-dispatch/internal/domain"
)

type itemDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// createOrderRequest carries amounts in minor units of Currency.
type createOrderRequest struct {
	CustomerID  string        `json:"customer_id"`
	StoreID     string        `json:"store_id"`
	Address     string        `json:"address"`
	Destination *domain.Point `json:"destination,omitempty"`
	Currency    string        `json:"currency"`
	DeliveryFee int64         `json:"delivery_fee"`
	Items       []itemDTO     `json:"items"`
}

type orderDTO struct {
	ID                    string             `json:"id"`
	CustomerID            string             `json:"customer_id"`
	StoreID               string             `json:"store_id"`
	Address               string             `json:"address"`
	Destination           *domain.Point      `json:"destination,omitempty"`
	Status                domain.OrderStatus `json:"status"`
	Subtotal              domain.Money       `json:"subtotal"`
	DeliveryFee           domain.Money       `json:"delivery_fee"`
	Total                 domain.Money       `json:"total"`
	Items                 []itemDTO          `json:"items,omitempty"`
	NeedsManualAssignment bool               `json:"needs_manual_assignment"`
	ManualReason          string             `json:"manual_reason,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

type assignmentDTO struct {
	ID             int64                   `json:"id"`
	OrderID        string                  `json:"order_id"`
	DriverID       int64                   `json:"driver_id"`
	Status         domain.AssignmentStatus `json:"status"`
	DistanceKm     float64                 `json:"distance_km"`
	ETAMinutes     float64                 `json:"eta_minutes"`
	Score          float64                 `json:"score"`
	OfferedAt      time.Time               `json:"offered_at"`
	OfferExpiresAt time.Time               `json:"offer_expires_at"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty"`
	ElapsedSeconds *int64                  `json:"elapsed_seconds,omitempty"`
}

type dispatchDTO struct {
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Assignment *assignmentDTO `json:"assignment,omitempty"`
}

type createOrderResponse struct {
	Order    orderDTO    `json:"order"`
	Dispatch dispatchDTO `json:"dispatch"`
}

type cancelOrderRequest struct {
	Actor string `json:"actor"`
}

type cancelOrderResponse struct {
	Order       orderDTO       `json:"order"`
	Changed     bool           `json:"changed"`
	DriverFreed bool           `json:"driver_freed"`
	Assignment  *assignmentDTO `json:"assignment,omitempty"`
}

type storeStatusRequest struct {
	Status string `json:"status"`
}

type storeStatusResponse struct {
	Order   orderDTO `json:"order"`
	Changed bool     `json:"changed"`
}

type timelineResponse struct {
	OrderID  string                 `json:"order_id"`
	Timeline []domain.TimelineEvent `json:"timeline"`
}

type etaResponse struct {
	OrderID string     `json:"order_id"`
	ETA     domain.ETA `json:"eta"`
}

type createDriverRequest struct {
	UserID  string  `json:"user_id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Vehicle string  `json:"vehicle"`
	Rating  float64 `json:"rating"`
}

type driverDTO struct {
	ID              int64              `json:"id"`
	UserID          string             `json:"user_id"`
	Name            string             `json:"name"`
	Phone           string             `json:"phone"`
	Vehicle         domain.VehicleType `json:"vehicle"`
	Active          bool               `json:"active"`
	Available       bool               `json:"available"`
	Paused          bool               `json:"paused"`
	Rating          float64            `json:"rating"`
	DeliveriesCount int                `json:"deliveries_count"`
	Position        *domain.Point      `json:"position,omitempty"`
	PositionAt      *time.Time         `json:"position_at,omitempty"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type locationRequest struct {
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	SpeedKmh   *float64   `json:"speed_kmh,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	AccuracyM  float64    `json:"accuracy_m"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

type locationResponse struct {
	PingID     int64       `json:"ping_id"`
	Current    bool        `json:"current"`
	OrderID    string      `json:"order_id,omitempty"`
	Recomputed bool        `json:"eta_recomputed"`
	ETA        *domain.ETA `json:"eta,omitempty"`
}

type transitionResponse struct {
	Assignment  assignmentDTO      `json:"assignment"`
	OrderStatus domain.OrderStatus `json:"order_status"`
	Changed     bool               `json:"changed"`
}
