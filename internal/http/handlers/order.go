package handlers

import (
	"net/http"
	"strings"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/service/order"
)

// OrderHandler handles HTTP requests for order resources.
type OrderHandler struct {
	orders   orderUsecase
	timeline timelineUsecase
	tracking trackingUsecase
	stream   *streamer
	logger   logx.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(
	logger logx.Logger,
	orders orderUsecase,
	timeline timelineUsecase,
	tracking trackingUsecase,
	sub realtime.Subscriber,
) *OrderHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &OrderHandler{
		orders:   orders,
		timeline: timeline,
		tracking: tracking,
		stream:   newStreamer(sub, logger),
		logger:   logger,
	}
}

var cancelActors = map[string]bool{
	domain.ActorCustomer: true,
	domain.ActorStore:    true,
	domain.ActorOperator: true,
}

// Create handles POST /orders. The order is created even when no driver can
// be found; the dispatch block of the reply says what happened.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	o, res, err := h.orders.CreateOrder(r.Context(), req.toModel())
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusCreated, createOrderResponse{
		Order:    orderToResponse(*o),
		Dispatch: dispatchToResponse(res),
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	o, err := h.orders.Order(r.Context(), id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, orderToResponse(*o))
}

// Cancel handles POST /orders/{id}/cancel. The body is optional.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	req := cancelOrderRequest{Actor: domain.ActorCustomer}
	if r.ContentLength > 0 {
		if ok := decodeJSON(h.logger, w, r, &req); !ok {
			return
		}
	}
	req.Actor = strings.ToLower(strings.TrimSpace(req.Actor))
	if req.Actor == "" {
		req.Actor = domain.ActorCustomer
	}
	if !cancelActors[req.Actor] {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid actor")
		return
	}

	res, err := h.orders.CancelOrder(r.Context(), id, req.Actor)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, cancelOrderResponse{
		Order:       orderToResponse(res.Order),
		Changed:     res.Changed,
		DriverFreed: res.DriverFreed,
		Assignment:  optionalAssignment(res.Assignment),
	})
}

// UpdateStatus handles POST /orders/{id}/status for store-side progress.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req storeStatusRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	to := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !order.IsStoreStatus(to) {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid status")
		return
	}

	res, err := h.orders.ApplyStoreStatus(r.Context(), id, to)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, storeStatusResponse{
		Order:   orderToResponse(res.Order),
		Changed: res.Changed,
	})
}

// Dispatch handles POST /orders/{id}/dispatch, the operator override.
func (h *OrderHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := h.orders.ManualDispatch(r.Context(), id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, dispatchToResponse(res))
}

// Timeline handles GET /orders/{id}/timeline.
func (h *OrderHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	tl, err := h.timeline.Timeline(r.Context(), id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, timelineResponse{OrderID: id, Timeline: tl})
}

// ETA handles GET /orders/{id}/eta.
func (h *OrderHandler) ETA(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	eta, err := h.tracking.CurrentETA(r.Context(), id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, etaResponse{OrderID: id, ETA: eta})
}

// Stream handles GET /orders/{id}/tracking/stream as Server-Sent Events.
func (h *OrderHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := stringFromURL(r, "id")
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := h.orders.Order(r.Context(), id); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	h.stream.serve(w, r, realtime.OrderTopic(id))
}
