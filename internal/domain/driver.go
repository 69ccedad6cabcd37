package domain

import (
	"regexp"
	"time"
)

// VehicleType describes how a driver moves around.
type VehicleType string

// List of possible vehicle types
const (
	VehicleFoot       VehicleType = "foot"
	VehicleBicycle    VehicleType = "bicycle"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
)

var allowedVehicles = [...]VehicleType{
	VehicleFoot, VehicleBicycle, VehicleMotorcycle, VehicleCar,
}

// Valid checks if the VehicleType is valid
func (v VehicleType) Valid() bool {
	for _, a := range allowedVehicles {
		if v == a {
			return true
		}
	}
	return false
}

// Driver represents a delivery driver.
//
// Active means the driver may work at all; Available means the driver is
// currently free to take a new offer. Paused records that the driver turned
// themselves unavailable, so finishing a delivery must not put them back in
// the pool.
type Driver struct {
	ID              int64
	UserID          string
	Name            string
	Phone           string
	Vehicle         VehicleType
	Active          bool
	Available       bool
	Paused          bool
	Rating          float64
	DeliveriesCount int
	Position        *Point
	PositionAt      *time.Time
	CreatedAt       time.Time
}

// Candidate is a driver snapshot annotated for selection.
type Candidate struct {
	Driver            Driver
	DistanceKm        float64
	RecentAssignments int
}

// EligibilityQuery narrows the driver pool before distance filtering.
type EligibilityQuery struct {
	MinRating        float64
	RequireActive    bool
	RequireAvailable bool
	Exclude          []int64
	RecentSince      time.Time
}

var rePhone = regexp.MustCompile(`^\+[0-9]{11,14}$`)

// ValidatePhone validates the phone number format
func ValidatePhone(s string) bool {
	return rePhone.MatchString(s)
}
