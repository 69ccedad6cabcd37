// Package candidate builds the pool of drivers eligible for an order.
package candidate

import (
	"context"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

// Default policy values used when a field is left empty.
const (
	DefaultMaxDistanceKm = 20.0
	DefaultMinRating     = 3.5
)

// Policy selects which drivers may be offered an order.
// Zero MaxDistanceKm and MinRating fall back to the filter defaults; the
// Allow* switches relax the active/available requirements.
type Policy struct {
	MaxDistanceKm    float64
	MinRating        float64
	AllowUnavailable bool
	AllowInactive    bool
}

// Filter returns eligible drivers annotated with their distance to a destination.
type Filter struct {
	drivers          driverFinder
	defaults         Policy
	recentWindow     time.Duration
	operationTimeout time.Duration
	now              func() time.Time
}

// NewFilter creates a Filter. Empty defaults fall back to DefaultMaxDistanceKm
// and DefaultMinRating.
func NewFilter(drivers driverFinder, defaults Policy, recentWindow, timeout time.Duration) *Filter {
	if defaults.MaxDistanceKm <= 0 {
		defaults.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if defaults.MinRating <= 0 {
		defaults.MinRating = DefaultMinRating
	}
	if recentWindow <= 0 {
		recentWindow = 2 * time.Hour
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Filter{
		drivers:          drivers,
		defaults:         defaults,
		recentWindow:     recentWindow,
		operationTimeout: timeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (f *Filter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.operationTimeout)
}

// Defaults returns the effective system policy.
func (f *Filter) Defaults() Policy { return f.defaults }

func (f *Filter) resolve(p Policy) Policy {
	if p.MaxDistanceKm <= 0 {
		p.MaxDistanceKm = f.defaults.MaxDistanceKm
	}
	if p.MinRating <= 0 {
		p.MinRating = f.defaults.MinRating
	}
	return p
}

// Filter returns the drivers that satisfy every predicate of p. Drivers
// without a current position are never returned. The result order carries no
// meaning.
func (f *Filter) Filter(ctx context.Context, dest domain.Point, p Policy, exclude []int64) ([]domain.Candidate, error) {
	if !dest.Valid() {
		return nil, fmt.Errorf("destination %v: %w", dest, apperr.ErrInvalid)
	}
	p = f.resolve(p)

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	pool, err := f.drivers.ListEligible(ctx, domain.EligibilityQuery{
		MinRating:        p.MinRating,
		RequireActive:    !p.AllowInactive,
		RequireAvailable: !p.AllowUnavailable,
		Exclude:          exclude,
		RecentSince:      f.now().Add(-f.recentWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible drivers: %w", err)
	}

	out := make([]domain.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.Driver.Position == nil || c.Driver.Rating < p.MinRating {
			continue
		}
		c.DistanceKm = geo.DistanceKm(*c.Driver.Position, dest)
		if c.DistanceKm > p.MaxDistanceKm {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
