package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/ports/dispatchtx"
)

// DispatchRepo runs assignment and order transitions in one transaction.
type DispatchRepo struct {
	db *pgxpool.Pool
}

// NewDispatchRepo creates a new DispatchRepo.
func NewDispatchRepo(db *pgxpool.Pool) *DispatchRepo {
	return &DispatchRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *DispatchRepo) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				panic(rbErr)
			}
			panic(p)
		}
	}()

	wrapped := &TxRepo{tx: tx}

	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

var _ dispatchtx.Repository = (*TxRepo)(nil)

// GetOrder - get order by ID, locking the row.
func (r *TxRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.tx, id, true)
}

// UpdateOrderStatus - compare-and-set on the order version.
func (r *TxRepo) UpdateOrderStatus(
	ctx context.Context, id string, version int, to domain.OrderStatus, at time.Time,
) (bool, error) {
	return updateOrderStatus(ctx, r.tx, id, version, to, at)
}

// GetDriver - get driver by ID without locking; claims are guarded by ClaimDriver.
func (r *TxRepo) GetDriver(ctx context.Context, id int64) (*domain.Driver, error) {
	return getDriver(ctx, r.tx, id, false)
}

// ClaimDriver - atomically takes a free driver out of the pool.
func (r *TxRepo) ClaimDriver(ctx context.Context, id int64, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE drivers
        SET available = FALSE, updated_at = $2
        WHERE id = $1 AND active AND available AND NOT paused
    `, id, at)
	if err != nil {
		return false, fmt.Errorf("claim driver %d: %w", id, err)
	}
	return ct.RowsAffected() > 0, nil
}

// ReleaseDriver - returns the driver to the pool unless inactive or paused.
func (r *TxRepo) ReleaseDriver(ctx context.Context, id int64, at time.Time) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE drivers
        SET available = TRUE, updated_at = $2
        WHERE id = $1 AND active AND NOT paused AND NOT available
    `, id, at)
	if err != nil {
		return false, fmt.Errorf("release driver %d: %w", id, err)
	}
	return ct.RowsAffected() > 0, nil
}

// IncrementDeliveries - bumps the driver's completed delivery counter.
func (r *TxRepo) IncrementDeliveries(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `
        UPDATE drivers SET deliveries_count = deliveries_count + 1 WHERE id = $1
    `, id); err != nil {
		return fmt.Errorf("increment driver %d deliveries: %w", id, err)
	}
	return nil
}

// GetAssignment - get assignment by ID, locking the row.
func (r *TxRepo) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	a, err := getAssignmentWhere(ctx, r.tx, `a.id = $1`, id, true)
	if err != nil {
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return a, nil
}

// GetActiveAssignmentByOrder - the order's non-terminal assignment, locked, or nil.
func (r *TxRepo) GetActiveAssignmentByOrder(ctx context.Context, orderID string) (*domain.Assignment, error) {
	a, err := getAssignmentWhere(ctx, r.tx, `a.order_id = $1 AND `+activeAssignment, orderID, true)
	if err != nil {
		return nil, fmt.Errorf("get active assignment of order %q: %w", orderID, err)
	}
	return a, nil
}

// InsertAssignment - insert a new assignment; a second active one per order is a conflict.
func (r *TxRepo) InsertAssignment(ctx context.Context, a *domain.Assignment) error {
	return insertAssignment(ctx, r.tx, a)
}

// UpdateAssignmentStatus - compare-and-set on the assignment version.
func (r *TxRepo) UpdateAssignmentStatus(
	ctx context.Context, id int64, version int, to domain.AssignmentStatus, at time.Time,
) (bool, error) {
	return updateAssignmentStatus(ctx, r.tx, id, version, to, at)
}

// AppendEvent - records a status transition.
func (r *TxRepo) AppendEvent(ctx context.Context, e *domain.StatusEvent) error {
	err := r.tx.QueryRow(ctx, `
        INSERT INTO status_events (order_id, entity, entity_id, from_status, to_status, actor, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `, e.OrderID, string(e.Entity), e.EntityID, e.FromStatus, e.ToStatus, e.Actor, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append %s event for order %q: %w", e.Entity, e.OrderID, err)
	}
	return nil
}
