package domain

import "time"

// Confidence grades an ETA.
type Confidence string

// List of confidence levels
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TravelMode is the routing profile used for estimates.
type TravelMode string

// List of travel modes
const (
	ModeDriving   TravelMode = "driving"
	ModeBicycling TravelMode = "bicycling"
	ModeWalking   TravelMode = "walking"
)

// TravelModeFor maps a vehicle to its routing profile.
func TravelModeFor(v VehicleType) TravelMode {
	switch v {
	case VehicleFoot:
		return ModeWalking
	case VehicleBicycle:
		return ModeBicycling
	default:
		return ModeDriving
	}
}

// ETA is a derived, recomputed estimate for one order.
type ETA struct {
	DistanceKm       float64    `json:"distance_km"`
	EstimatedMinutes float64    `json:"tiempo_estimado_minutos"`
	TrafficMinutes   float64    `json:"tiempo_trafico_minutos"`
	Optimized        bool       `json:"ruta_optimizada"`
	Confidence       Confidence `json:"confianza"`
	UpdatedAt        time.Time  `json:"ultima_actualizacion"`
}
