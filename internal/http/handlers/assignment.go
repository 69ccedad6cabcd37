package handlers

import (
	"net/http"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

var assignmentActions = map[string]domain.AssignmentStatus{
	"accept":              domain.AssignmentAccepted,
	"reject":              domain.AssignmentRejected,
	"heading-to-store":    domain.AssignmentHeadingToStore,
	"picked-up":           domain.AssignmentPickedUp,
	"heading-to-customer": domain.AssignmentHeadingToCustomer,
	"delivered":           domain.AssignmentDelivered,
}

// AssignmentHandler handles driver actions on assignments.
type AssignmentHandler struct {
	usecase assignmentUsecase
	logger  logx.Logger
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(logger logx.Logger, uc assignmentUsecase) *AssignmentHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &AssignmentHandler{usecase: uc, logger: logger}
}

// Action handles POST /assignments/{id}/{action}.
//
// Repeating an applied action answers 200 with changed=false. An action that
// lost to another terminal status (a late accept after the offer expired)
// answers 409 with the current assignment.
func (h *AssignmentHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	action, _ := stringFromURL(r, "action")
	to, ok := assignmentActions[action]
	if !ok {
		writeError(h.logger, w, r, http.StatusBadRequest, "unknown action")
		return
	}

	res, err := h.usecase.DriverAction(r.Context(), id, to)
	if err != nil {
		writeAppError(h.logger, w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Changed && res.Assignment.Status != to {
		status = http.StatusConflict
	}
	writeJSON(h.logger, w, r, status, transitionResponse{
		Assignment:  assignmentToResponse(res.Assignment),
		OrderStatus: res.Order.Status,
		Changed:     res.Changed,
	})
}
