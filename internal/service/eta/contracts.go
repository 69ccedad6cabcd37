package eta

import (
	"context"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/gateway/routing"
)

type counter interface {
	Inc()
}

type provider interface {
	Estimate(ctx context.Context, origin, destination domain.Point, mode domain.TravelMode) (routing.Estimate, error)
}
