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

const driverColumns = `d.id, d.user_id, d.name, d.phone, d.vehicle, d.active, d.available, d.paused,
       d.rating, d.deliveries_count, d.lat, d.lng, d.position_at, d.created_at`

// DriverRepo represents driver repository.
type DriverRepo struct{ db *pgxpool.Pool }

// NewDriverRepo creates a new DriverRepo.
func NewDriverRepo(db *pgxpool.Pool) *DriverRepo { return &DriverRepo{db: db} }

func scanDriver(row scanner) (*domain.Driver, error) {
	var (
		d        domain.Driver
		lat, lng *float64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Phone, &d.Vehicle, &d.Active, &d.Available, &d.Paused,
		&d.Rating, &d.DeliveriesCount, &lat, &lng, &d.PositionAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Position = &domain.Point{Lat: *lat, Lng: *lng}
	}
	return &d, nil
}

func getDriver(ctx context.Context, q querier, id int64, lock bool) (*domain.Driver, error) {
	sql := `SELECT ` + driverColumns + ` FROM drivers d WHERE d.id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	d, err := scanDriver(q.QueryRow(ctx, sql, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get driver %d: %w", id, err)
	}
	return d, nil
}

// Get - returns driver by its ID.
func (r *DriverRepo) Get(ctx context.Context, id int64) (*domain.Driver, error) {
	return getDriver(ctx, r.db, id, false)
}

// List returns drivers ordered by id.
func (r *DriverRepo) List(ctx context.Context) ([]domain.Driver, error) {
	rows, err := r.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers d ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Driver, 0)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Create - creates a new driver and fills its ID.
func (r *DriverRepo) Create(ctx context.Context, d *domain.Driver) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO drivers (user_id, name, phone, vehicle, active, available, rating)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `, d.UserID, d.Name, d.Phone, string(d.Vehicle), d.Active, d.Available, d.Rating).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

// SetAvailability applies the driver's own availability toggle.
//
// Going unavailable pauses the driver. Going available clears the pause and
// returns the driver to the pool only when no assignment is holding them.
func (r *DriverRepo) SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error) {
	if available {
		return r.resume(ctx, id)
	}
	d, err := scanDriver(r.db.QueryRow(ctx, `
        UPDATE drivers d
        SET paused = TRUE, available = FALSE, updated_at = now()
        WHERE d.id = $1
        RETURNING `+driverColumns, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("set driver %d availability: %w", id, err)
	}
	return d, nil
}

// resume locks the driver row before looking for active assignments. A claim
// holding the row commits first, and the assignment check runs as a separate
// statement so it sees the assignment that claim inserted.
func (r *DriverRepo) resume(ctx context.Context, id int64) (*domain.Driver, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// no-op after commit
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := getDriver(ctx, tx, id, true)
	if err != nil || locked == nil {
		return nil, err
	}

	var busy bool
	if err := tx.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM assignments
            WHERE driver_id = $1
              AND status IN ('asignado', 'aceptado', 'en_camino_tienda', 'recogido', 'en_camino_cliente')
        )
    `, id).Scan(&busy); err != nil {
		return nil, fmt.Errorf("check driver %d assignments: %w", id, err)
	}

	d, err := scanDriver(tx.QueryRow(ctx, `
        UPDATE drivers d
        SET paused = FALSE, available = d.active AND NOT $2::boolean, updated_at = now()
        WHERE d.id = $1
        RETURNING `+driverColumns, id, busy))
	if err != nil {
		return nil, fmt.Errorf("set driver %d availability: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

// UpdatePosition stores the position only if it is newer than the current one.
func (r *DriverRepo) UpdatePosition(ctx context.Context, id int64, p domain.Point, at time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE drivers
        SET lat = $2, lng = $3, position_at = $4, updated_at = now()
        WHERE id = $1 AND (position_at IS NULL OR position_at < $4)
    `, id, p.Lat, p.Lng, at)
	if err != nil {
		return false, fmt.Errorf("update driver %d position: %w", id, err)
	}
	return ct.RowsAffected() > 0, nil
}

// ListEligible returns positioned drivers passing the rating and flag
// predicates, each annotated with its assignment count since q.RecentSince.
func (r *DriverRepo) ListEligible(ctx context.Context, q domain.EligibilityQuery) ([]domain.Candidate, error) {
	exclude := q.Exclude
	if exclude == nil {
		exclude = []int64{}
	}
	rows, err := r.db.Query(ctx, `
        SELECT `+driverColumns+`,
               (SELECT COUNT(*) FROM assignments a
                WHERE a.driver_id = d.id AND a.offered_at >= $4) AS recent
        FROM drivers d
        WHERE d.lat IS NOT NULL AND d.lng IS NOT NULL
          AND d.rating >= $1
          AND (NOT $2 OR d.active)
          AND (NOT $3 OR (d.available AND NOT d.paused))
          AND NOT (d.id = ANY($5))
        ORDER BY d.id
    `, q.MinRating, q.RequireActive, q.RequireAvailable, q.RecentSince, exclude)
	if err != nil {
		return nil, fmt.Errorf("list eligible drivers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Candidate, 0)
	for rows.Next() {
		var (
			c        domain.Candidate
			lat, lng *float64
		)
		d := &c.Driver
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Phone, &d.Vehicle, &d.Active, &d.Available, &d.Paused,
			&d.Rating, &d.DeliveriesCount, &lat, &lng, &d.PositionAt, &d.CreatedAt, &c.RecentAssignments); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			d.Position = &domain.Point{Lat: *lat, Lng: *lng}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
