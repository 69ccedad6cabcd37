package handlers

import (
	"net/http"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
)

// DriverHandler handles HTTP requests for driver resources.
type DriverHandler struct {
	drivers  driverUsecase
	tracking trackingUsecase
	stream   *streamer
	logger   logx.Logger
	now      func() time.Time
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(logger logx.Logger, drivers driverUsecase, tracking trackingUsecase, sub realtime.Subscriber) *DriverHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &DriverHandler{
		drivers:  drivers,
		tracking: tracking,
		stream:   newStreamer(sub, logger),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create handles POST /drivers.
func (h *DriverHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDriverRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	d := req.toModel()
	if err := h.drivers.Create(r.Context(), d); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusCreated, driverToResponse(*d))
}

// List handles GET /drivers.
func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.drivers.List(r.Context())
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, driversToResponse(list))
}

// Get handles GET /drivers/{id}. The position comes from the position cache
// when it is fresher than the stored one.
func (h *DriverHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	d, err := h.drivers.Get(r.Context(), id)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	out := driverToResponse(*d)
	if pos, err := h.tracking.Position(r.Context(), id); err == nil && pos != nil {
		if out.PositionAt == nil || pos.RecordedAt.After(*out.PositionAt) {
			p, at := pos.Point, pos.RecordedAt
			out.Position, out.PositionAt = &p, &at
		}
	}
	writeJSON(h.logger, w, r, http.StatusOK, out)
}

// SetAvailability handles POST /drivers/{id}/availability.
func (h *DriverHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req availabilityRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Available == nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "available is required")
		return
	}
	d, err := h.drivers.SetAvailability(r.Context(), id, *req.Available)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, driverToResponse(*d))
}

// ReportLocation handles POST /drivers/{id}/location.
func (h *DriverHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req locationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "lat and lng are required")
		return
	}
	at := h.now()
	if req.RecordedAt != nil {
		at = req.RecordedAt.UTC()
	}

	res, err := h.tracking.Ingest(r.Context(), domain.LocationPing{
		DriverID:   id,
		Position:   domain.Point{Lat: *req.Lat, Lng: *req.Lng},
		SpeedKmh:   req.SpeedKmh,
		Heading:    req.Heading,
		AccuracyM:  req.AccuracyM,
		RecordedAt: at,
	})
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusAccepted, locationResponse{
		PingID:     res.Ping.ID,
		Current:    res.Current,
		OrderID:    res.OrderID,
		Recomputed: res.Recomputed,
		ETA:        res.ETA,
	})
}

// Offers handles GET /drivers/{id}/offers/stream as Server-Sent Events.
func (h *DriverHandler) Offers(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := h.drivers.Get(r.Context(), id); err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	h.stream.serve(w, r, realtime.DriverTopic(id))
}
