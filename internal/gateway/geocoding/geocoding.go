// Package geocoding resolves delivery addresses to coordinates.
package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/retry"
)

// Geocoder resolves an address. It returns apperr.ErrNotFound when the
// address matches nothing.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (domain.Point, error)
}

type mapsClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Google resolves addresses with the Google Maps Geocoding API.
type Google struct {
	client   mapsClient
	region   string
	language string
}

// NewGoogle creates a Google geocoder.
func NewGoogle(client *maps.Client, region, language string) *Google {
	return &Google{client: client, region: region, language: language}
}

// Resolve returns the coordinates of the best match for address.
func (g *Google) Resolve(ctx context.Context, address string) (domain.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Point{}, fmt.Errorf("empty address: %w", apperr.ErrInvalid)
	}
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   g.region,
		Language: g.language,
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return domain.Point{}, fmt.Errorf("geocode %q: %w", address, apperr.ErrNotFound)
		}
		return domain.Point{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return domain.Point{}, fmt.Errorf("geocode %q: %w", address, apperr.ErrNotFound)
	}
	loc := results[0].Geometry.Location
	return domain.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// Unavailable is used when no geocoding backend is configured.
type Unavailable struct{}

// Resolve always fails with apperr.ErrUnavailable.
func (Unavailable) Resolve(context.Context, string) (domain.Point, error) {
	return domain.Point{}, fmt.Errorf("geocoding not configured: %w", apperr.ErrUnavailable)
}

// Retrying retries transient geocoding failures.
type Retrying struct {
	next Geocoder
	r    *retry.Retrier
}

// NewRetrying wraps next with retries.
func NewRetrying(next Geocoder, r *retry.Retrier) *Retrying {
	return &Retrying{next: next, r: r}
}

// Resolve calls the wrapped geocoder with retries.
func (g *Retrying) Resolve(ctx context.Context, address string) (domain.Point, error) {
	return retry.Value(ctx, g.r, "geocode", func(ctx context.Context) (domain.Point, error) {
		p, err := g.next.Resolve(ctx, address)
		if errors.Is(err, apperr.ErrUnavailable) {
			return p, retry.Permanent(err)
		}
		return p, err
	})
}
