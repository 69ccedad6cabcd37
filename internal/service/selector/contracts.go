package selector

import "courier-dispatch/internal/domain"

type counter interface {
	Inc()
}

// speedProfile turns the selection distance into a snapshot ETA.
type speedProfile interface {
	TravelMinutes(vehicle domain.VehicleType, distanceKm float64) (float64, error)
}
