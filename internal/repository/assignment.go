package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

const assignmentColumns = `a.id, a.order_id, a.driver_id, a.status, a.version, a.distance_km, a.eta_minutes,
       a.score, a.offered_at, a.offer_expires_at, a.updated_at, a.finished_at, a.elapsed_seconds`

const activeAssignment = `a.status IN ('asignado', 'aceptado', 'en_camino_tienda', 'recogido', 'en_camino_cliente')`

// AssignmentRepo represents assignment repository.
type AssignmentRepo struct{ db *pgxpool.Pool }

// NewAssignmentRepo creates a new AssignmentRepo.
func NewAssignmentRepo(db *pgxpool.Pool) *AssignmentRepo { return &AssignmentRepo{db: db} }

func scanAssignment(row scanner) (*domain.Assignment, error) {
	var a domain.Assignment
	if err := row.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.Status, &a.Version, &a.DistanceKm, &a.ETAMinutes,
		&a.Score, &a.OfferedAt, &a.OfferExpiresAt, &a.UpdatedAt, &a.FinishedAt, &a.ElapsedSeconds); err != nil {
		return nil, err
	}
	return &a, nil
}

func getAssignmentWhere(ctx context.Context, q querier, where string, arg any, lock bool) (*domain.Assignment, error) {
	sql := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE ` + where
	if lock {
		sql += ` FOR UPDATE`
	}
	a, err := scanAssignment(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func listAssignments(ctx context.Context, q querier, sql string, args ...any) ([]domain.Assignment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Get - returns assignment by its ID.
func (r *AssignmentRepo) Get(ctx context.Context, id int64) (*domain.Assignment, error) {
	a, err := getAssignmentWhere(ctx, r.db, `a.id = $1`, id, false)
	if err != nil {
		return nil, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return a, nil
}

// GetActiveByDriver returns the driver's non-terminal assignment, or nil.
func (r *AssignmentRepo) GetActiveByDriver(ctx context.Context, driverID int64) (*domain.Assignment, error) {
	a, err := getAssignmentWhere(ctx, r.db,
		`a.driver_id = $1 AND `+activeAssignment+` ORDER BY a.offered_at DESC LIMIT 1`, driverID, false)
	if err != nil {
		return nil, fmt.Errorf("get active assignment of driver %d: %w", driverID, err)
	}
	return a, nil
}

// GetActiveByOrder returns the order's non-terminal assignment, or nil.
func (r *AssignmentRepo) GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error) {
	a, err := getAssignmentWhere(ctx, r.db, `a.order_id = $1 AND `+activeAssignment, orderID, false)
	if err != nil {
		return nil, fmt.Errorf("get active assignment of order %q: %w", orderID, err)
	}
	return a, nil
}

// ListByOrder returns every assignment of an order, oldest first.
func (r *AssignmentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Assignment, error) {
	out, err := listAssignments(ctx, r.db,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.order_id = $1 ORDER BY a.offered_at, a.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list assignments of order %q: %w", orderID, err)
	}
	return out, nil
}

// ListExpiredOffers returns offers still waiting for an answer past their deadline.
func (r *AssignmentRepo) ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]domain.Assignment, error) {
	out, err := listAssignments(ctx, r.db, `
        SELECT `+assignmentColumns+`
        FROM assignments a
        WHERE a.status = 'asignado' AND a.offer_expires_at <= $1
        ORDER BY a.offer_expires_at
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	return out, nil
}

func insertAssignment(ctx context.Context, q querier, a *domain.Assignment) error {
	err := q.QueryRow(ctx, `
        INSERT INTO assignments (order_id, driver_id, status, version, distance_km, eta_minutes, score,
                                 offered_at, offer_expires_at, updated_at)
        VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $8, $7)
        RETURNING id, version
    `, a.OrderID, a.DriverID, string(a.Status), a.DistanceKm, a.ETAMinutes, a.Score,
		a.OfferedAt, a.OfferExpiresAt).Scan(&a.ID, &a.Version)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("order %q already has an active assignment: %w", a.OrderID, apperr.ErrConflict)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	a.UpdatedAt = a.OfferedAt
	return nil
}

func updateAssignmentStatus(
	ctx context.Context, q querier, id int64, version int, to domain.AssignmentStatus, at time.Time,
) (bool, error) {
	ct, err := q.Exec(ctx, `
        UPDATE assignments
        SET status = $3,
            version = version + 1,
            updated_at = $4,
            finished_at = CASE WHEN $5 THEN $4 ELSE finished_at END,
            elapsed_seconds = CASE WHEN $6 THEN EXTRACT(EPOCH FROM ($4 - offered_at))::BIGINT
                                   ELSE elapsed_seconds END
        WHERE id = $1 AND version = $2
    `, id, version, string(to), at, to.Terminal(), to == domain.AssignmentDelivered)
	if err != nil {
		return false, fmt.Errorf("update assignment %d status: %w", id, err)
	}
	return ct.RowsAffected() > 0, nil
}
