package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

const orderColumns = `o.id, o.customer_id, o.store_id, o.address, o.lat, o.lng, o.status, o.version,
       o.currency, o.subtotal, o.delivery_fee, o.total, o.needs_manual_assignment, o.manual_reason,
       o.created_at, o.updated_at`

// OrderRepo represents order repository.
type OrderRepo struct{ db *pgxpool.Pool }

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(db *pgxpool.Pool) *OrderRepo { return &OrderRepo{db: db} }

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o        domain.Order
		lat, lng *float64
		currency string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.StoreID, &o.Address, &lat, &lng, &o.Status, &o.Version,
		&currency, &o.Subtotal.Amount, &o.DeliveryFee.Amount, &o.Total.Amount,
		&o.NeedsManualAssignment, &o.ManualReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Subtotal.Currency = currency
	o.DeliveryFee.Currency = currency
	o.Total.Currency = currency
	if lat != nil && lng != nil {
		o.Destination = &domain.Point{Lat: *lat, Lng: *lng}
	}
	return &o, nil
}

func getOrder(ctx context.Context, q querier, id string, lock bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %q: %w", id, err)
	}
	return o, nil
}

// Get - returns order by its ID together with its items.
func (r *OrderRepo) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := getOrder(ctx, r.db, id, false)
	if err != nil || o == nil {
		return o, err
	}

	rows, err := r.db.Query(ctx, `
        SELECT product_id, name, quantity, unit_price
        FROM order_items
        WHERE order_id = $1
        ORDER BY position
    `, id)
	if err != nil {
		return nil, fmt.Errorf("get order %q items: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice.Amount); err != nil {
			return nil, err
		}
		it.UnitPrice.Currency = o.Total.Currency
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// Create - inserts the order row. Items are stored separately by InsertItems.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	var lat, lng *float64
	if o.Destination != nil {
		lat, lng = &o.Destination.Lat, &o.Destination.Lng
	}
	err := r.db.QueryRow(ctx, `
        INSERT INTO orders (id, customer_id, store_id, address, lat, lng, status, version,
                            currency, subtotal, delivery_fee, total, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11, $12, $12)
        RETURNING version
    `, o.ID, o.CustomerID, o.StoreID, o.Address, lat, lng, string(o.Status),
		o.Total.Currency, o.Subtotal.Amount, o.DeliveryFee.Amount, o.Total.Amount, o.CreatedAt).Scan(&o.Version)
	if err != nil {
		if IsDuplicate(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("create order: %w", err)
	}
	o.UpdatedAt = o.CreatedAt
	return nil
}

// InsertItems stores all line items of an order in one batch.
func (r *OrderRepo) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(`
            INSERT INTO order_items (order_id, position, product_id, name, quantity, unit_price)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, orderID, i, it.ProductID, it.Name, it.Quantity, it.UnitPrice.Amount)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order %q items: %w", orderID, err)
	}
	return nil
}

// Delete removes the order and everything hanging off it.
func (r *OrderRepo) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetDestination stores the geocoded coordinates.
func (r *OrderRepo) SetDestination(ctx context.Context, id string, p domain.Point) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE orders SET lat = $2, lng = $3, updated_at = now() WHERE id = $1
    `, id, p.Lat, p.Lng)
	if err != nil {
		return fmt.Errorf("set order %q destination: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetManual raises or clears the needs_manual_assignment flag.
func (r *OrderRepo) SetManual(ctx context.Context, id string, manual bool, reason string) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE orders
        SET needs_manual_assignment = $2, manual_reason = $3, updated_at = now()
        WHERE id = $1
    `, id, manual, reason)
	if err != nil {
		return fmt.Errorf("set order %q manual flag: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// ListAwaitingDriver returns geocoded, non-manual, non-terminal orders that
// have no active assignment, oldest first.
func (r *OrderRepo) ListAwaitingDriver(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders o
        WHERE o.status IN ('pending', 'confirmed', 'preparing', 'ready')
          AND NOT o.needs_manual_assignment
          AND o.lat IS NOT NULL
          AND NOT EXISTS (
              SELECT 1 FROM assignments a
              WHERE a.order_id = o.id
                AND a.status IN ('asignado', 'aceptado', 'en_camino_tienda', 'recogido', 'en_camino_cliente')
          )
        ORDER BY o.created_at, o.id
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders awaiting driver: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListEvents returns the status history of an order in occurrence order.
func (r *OrderRepo) ListEvents(ctx context.Context, orderID string) ([]domain.StatusEvent, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, order_id, entity, entity_id, from_status, to_status, actor, created_at
        FROM status_events
        WHERE order_id = $1
        ORDER BY created_at, id
    `, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order %q events: %w", orderID, err)
	}
	defer rows.Close()

	out := make([]domain.StatusEvent, 0)
	for rows.Next() {
		var e domain.StatusEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Entity, &e.EntityID, &e.FromStatus, &e.ToStatus,
			&e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func updateOrderStatus(ctx context.Context, q querier, id string, version int, to domain.OrderStatus, at time.Time) (bool, error) {
	ct, err := q.Exec(ctx, `
        UPDATE orders
        SET status = $3, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2
    `, id, version, string(to), at)
	if err != nil {
		return false, fmt.Errorf("update order %q status: %w", id, err)
	}
	return ct.RowsAffected() > 0, nil
}
