package assignment

import (
	"context"

	"courier-dispatch/internal/domain"
)

type assignmentReader interface {
	Get(ctx context.Context, id int64) (*domain.Assignment, error)
}
