package handlers

import (
	"strings"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/service/dispatch"
)

func (req createOrderRequest) toModel() dispatch.NewOrder {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: domain.Money{Amount: it.UnitPrice, Currency: currency},
		})
	}
	return dispatch.NewOrder{
		CustomerID:  req.CustomerID,
		StoreID:     req.StoreID,
		Address:     req.Address,
		Destination: req.Destination,
		Items:       items,
		DeliveryFee: domain.Money{Amount: req.DeliveryFee, Currency: currency},
	}
}

func orderToResponse(o domain.Order) orderDTO {
	out := orderDTO{
		ID:                    o.ID,
		CustomerID:            o.CustomerID,
		StoreID:               o.StoreID,
		Address:               o.Address,
		Destination:           o.Destination,
		Status:                o.Status,
		Subtotal:              o.Subtotal,
		DeliveryFee:           o.DeliveryFee,
		Total:                 o.Total,
		NeedsManualAssignment: o.NeedsManualAssignment,
		ManualReason:          o.ManualReason,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, itemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount,
		})
	}
	return out
}

func assignmentToResponse(a domain.Assignment) assignmentDTO {
	return assignmentDTO{
		ID:             a.ID,
		OrderID:        a.OrderID,
		DriverID:       a.DriverID,
		Status:         a.Status,
		DistanceKm:     a.DistanceKm,
		ETAMinutes:     a.ETAMinutes,
		Score:          a.Score,
		OfferedAt:      a.OfferedAt,
		OfferExpiresAt: a.OfferExpiresAt,
		FinishedAt:     a.FinishedAt,
		ElapsedSeconds: a.ElapsedSeconds,
	}
}

func optionalAssignment(a *domain.Assignment) *assignmentDTO {
	if a == nil {
		return nil
	}
	dto := assignmentToResponse(*a)
	return &dto
}

func dispatchToResponse(r dispatch.Result) dispatchDTO {
	return dispatchDTO{
		Outcome:    string(r.Outcome),
		Reason:     r.Reason,
		Assignment: optionalAssignment(r.Assignment),
	}
}

func (req createDriverRequest) toModel() *domain.Driver {
	return &domain.Driver{
		UserID:  req.UserID,
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Vehicle: domain.VehicleType(strings.ToLower(strings.TrimSpace(req.Vehicle))),
		Rating:  req.Rating,
	}
}

func driverToResponse(d domain.Driver) driverDTO {
	return driverDTO{
		ID:              d.ID,
		UserID:          d.UserID,
		Name:            d.Name,
		Phone:           d.Phone,
		Vehicle:         d.Vehicle,
		Active:          d.Active,
		Available:       d.Available,
		Paused:          d.Paused,
		Rating:          d.Rating,
		DeliveriesCount: d.DeliveriesCount,
		Position:        d.Position,
		PositionAt:      d.PositionAt,
	}
}

func driversToResponse(list []domain.Driver) []driverDTO {
	out := make([]driverDTO, 0, len(list))
	for _, d := range list {
		out = append(out, driverToResponse(d))
	}
	return out
}
