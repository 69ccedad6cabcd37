package geo

import (
	"fmt"

	"courier-dispatch/internal/domain"
)

// SpeedProfile converts straight-line distances into travel minutes per vehicle.
type SpeedProfile interface {
	SpeedKmh(vehicle domain.VehicleType) (float64, error)
	TravelMinutes(vehicle domain.VehicleType, distanceKm float64) (float64, error)
}

type defaultSpeedProfile struct{}

// NewSpeedProfile returns the urban average speed profile.
func NewSpeedProfile() SpeedProfile {
	return defaultSpeedProfile{}
}

// SpeedKmh returns the average urban speed for the vehicle.
func (defaultSpeedProfile) SpeedKmh(vehicle domain.VehicleType) (float64, error) {
	switch vehicle {
	case domain.VehicleFoot:
		return 5, nil
	case domain.VehicleBicycle:
		return 15, nil
	case domain.VehicleMotorcycle:
		return 30, nil
	case domain.VehicleCar:
		return 35, nil
	default:
		return 0, fmt.Errorf("unknown vehicle type: %s", vehicle)
	}
}

// TravelMinutes returns distance / speed in minutes.
func (p defaultSpeedProfile) TravelMinutes(vehicle domain.VehicleType, distanceKm float64) (float64, error) {
	speed, err := p.SpeedKmh(vehicle)
	if err != nil {
		return 0, err
	}
	if distanceKm <= 0 {
		return 0, nil
	}
	return distanceKm / speed * 60, nil
}
