package dispatch

import (
	"context"
	"strconv"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/notify"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
)

// OfferPayload is pushed to the driver topic when an order is offered.
type OfferPayload struct {
	AssignmentID int64         `json:"assignment_id"`
	OrderID      string        `json:"order_id"`
	Address      string        `json:"address"`
	Destination  *domain.Point `json:"destination,omitempty"`
	DistanceKm   float64       `json:"distance_km"`
	ETAMinutes   float64       `json:"eta_minutes"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// StatusPayload is pushed on every order or assignment change.
type StatusPayload struct {
	OrderID          string                  `json:"order_id"`
	OrderStatus      domain.OrderStatus      `json:"order_status"`
	AssignmentID     int64                   `json:"assignment_id,omitempty"`
	AssignmentStatus domain.AssignmentStatus `json:"assignment_status,omitempty"`
	DriverID         int64                   `json:"driver_id,omitempty"`
}

// TimelinePayload carries the rebuilt timeline.
type TimelinePayload struct {
	OrderID  string                 `json:"order_id"`
	Timeline []domain.TimelineEvent `json:"timeline"`
}

func (d *Dispatcher) publishStatus(ctx context.Context, orderID string, status domain.OrderStatus, a *domain.Assignment) {
	p := StatusPayload{OrderID: orderID, OrderStatus: status}
	if a != nil {
		p.AssignmentID = a.ID
		p.AssignmentStatus = a.Status
		p.DriverID = a.DriverID
	}
	d.Emitter.Emit(ctx, realtime.OrderTopic(orderID), realtime.KindStatus, p)
	if a != nil {
		d.Emitter.Emit(ctx, realtime.DriverTopic(a.DriverID), realtime.KindStatus, p)
	}
}

func (d *Dispatcher) publishTimeline(ctx context.Context, orderID string) {
	tl, err := d.Timeline.Timeline(ctx, orderID)
	if err != nil {
		d.Logger.Warn("timeline rebuild failed",
			logx.String("event", "timeline_failed"),
			logx.String("order_id", orderID),
			logx.Err(err),
		)
		return
	}
	d.Emitter.Emit(ctx, realtime.OrderTopic(orderID), realtime.KindTimeline, TimelinePayload{OrderID: orderID, Timeline: tl})
}

// notify is best effort; the notifier already retries and logs.
func (d *Dispatcher) notify(ctx context.Context, userID, title, body, orderID string, assignmentID int64) {
	if userID == "" {
		return
	}
	data := map[string]string{"order_id": orderID}
	if assignmentID > 0 {
		data["assignment_id"] = strconv.FormatInt(assignmentID, 10)
	}
	if err := d.Notifier.Notify(ctx, userID, notify.Notification{Title: title, Body: body, Data: data}); err != nil {
		d.Logger.Warn("notification failed",
			logx.String("event", "notification_failed"),
			logx.String("order_id", orderID),
			logx.Err(err),
		)
	}
}

func (d *Dispatcher) notifyDriver(ctx context.Context, driverID int64, title, body, orderID string, assignmentID int64) {
	drv, err := d.Drivers.Get(ctx, driverID)
	if err != nil || drv == nil {
		return
	}
	d.notify(ctx, drv.UserID, title, body, orderID, assignmentID)
}
