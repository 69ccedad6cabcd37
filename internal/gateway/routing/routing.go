// Package routing estimates travel time between two points.
package routing

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

// Estimate is a provider answer for one origin/destination pair.
type Estimate struct {
	DistanceKm   float64
	BaseTime     time.Duration
	TrafficDelay time.Duration
	Confidence   domain.Confidence
	Routed       bool
}

// Provider is a traffic-aware routing capability.
type Provider interface {
	Estimate(ctx context.Context, origin, destination domain.Point, mode domain.TravelMode) (Estimate, error)
}

type mapsClient interface {
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// Google estimates with the Google Maps Distance Matrix API.
type Google struct {
	client   mapsClient
	language string
}

// NewGoogle creates a Google routing provider.
func NewGoogle(client *maps.Client, language string) *Google {
	return &Google{client: client, language: language}
}

func latLng(p domain.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Estimate asks for a departure-now route. For driving the traffic delay is
// the difference between the in-traffic and the free-flow durations.
func (g *Google) Estimate(ctx context.Context, origin, destination domain.Point, mode domain.TravelMode) (Estimate, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:      []string{latLng(origin)},
		Destinations: []string{latLng(destination)},
		Mode:         maps.Mode(mode),
		Language:     g.language,
		Units:        maps.UnitsMetric,
	}
	if mode == domain.ModeDriving {
		r.DepartureTime = "now"
		r.TrafficModel = maps.TrafficModelBestGuess
	}

	resp, err := g.client.DistanceMatrix(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Estimate{}, fmt.Errorf("no route found")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Estimate{}, fmt.Errorf("no route found: %s", el.Status)
	}

	est := Estimate{
		DistanceKm: float64(el.Distance.Meters) / 1000,
		BaseTime:   el.Duration,
		Confidence: domain.ConfidenceMedium,
		Routed:     true,
	}
	if el.DurationInTraffic > 0 {
		est.Confidence = domain.ConfidenceHigh
		if delay := el.DurationInTraffic - el.Duration; delay > 0 {
			est.TrafficDelay = delay
		}
	}
	return est, nil
}

// StraightLine estimates from great-circle distance and an average speed per
// travel mode. It never fails and is always low confidence.
type StraightLine struct{}

var modeSpeedKmh = map[domain.TravelMode]float64{
	domain.ModeWalking:   5,
	domain.ModeBicycling: 15,
	domain.ModeDriving:   30,
}

// Estimate returns the straight-line estimate.
func (StraightLine) Estimate(_ context.Context, origin, destination domain.Point, mode domain.TravelMode) (Estimate, error) {
	speed, ok := modeSpeedKmh[mode]
	if !ok {
		speed = modeSpeedKmh[domain.ModeDriving]
	}
	km := geo.DistanceKm(origin, destination)
	return Estimate{
		DistanceKm: km,
		BaseTime:   time.Duration(km / speed * float64(time.Hour)),
		Confidence: domain.ConfidenceLow,
	}, nil
}
