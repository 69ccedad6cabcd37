package candidate

import (
	"context"

	"courier-dispatch/internal/domain"
)

// driverFinder narrows the pool by flags, rating and exclusions.
type driverFinder interface {
	ListEligible(ctx context.Context, q domain.EligibilityQuery) ([]domain.Candidate, error)
}
