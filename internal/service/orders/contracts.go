//go:generate mockgen -source=contracts.go -destination=orders_mocks_test.go -package=orders_test

package orders

import (
	"context"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/service/dispatch"
	"courier-dispatch/internal/service/order"
)

// DispatchPort abstracts the subset of dispatcher operations
// needed by orders Processor when handling order events
type DispatchPort interface {
	Dispatch(ctx context.Context, orderID string) (dispatch.Result, error)
	ApplyStoreStatus(ctx context.Context, orderID string, to domain.OrderStatus) (order.StoreResult, error)
	CancelOrder(ctx context.Context, orderID, actor string) (order.CancelResult, error)
}
