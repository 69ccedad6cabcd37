package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/ports/dispatchtx"
	"courier-dispatch/internal/repository"
	"courier-dispatch/internal/repository/memory"
)

type orderRepo interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	Create(ctx context.Context, o *domain.Order) error
	InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	Delete(ctx context.Context, id string) error
	SetDestination(ctx context.Context, id string, p domain.Point) error
	SetManual(ctx context.Context, id string, manual bool, reason string) error
	ListAwaitingDriver(ctx context.Context, limit int) ([]domain.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]domain.StatusEvent, error)
}

type driverRepo interface {
	Get(ctx context.Context, id int64) (*domain.Driver, error)
	List(ctx context.Context) ([]domain.Driver, error)
	Create(ctx context.Context, d *domain.Driver) error
	SetAvailability(ctx context.Context, id int64, available bool) (*domain.Driver, error)
	UpdatePosition(ctx context.Context, id int64, p domain.Point, at time.Time) (bool, error)
	ListEligible(ctx context.Context, q domain.EligibilityQuery) ([]domain.Candidate, error)
}

type assignmentRepo interface {
	Get(ctx context.Context, id int64) (*domain.Assignment, error)
	GetActiveByDriver(ctx context.Context, driverID int64) (*domain.Assignment, error)
	GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Assignment, error)
	ListExpiredOffers(ctx context.Context, now time.Time, limit int) ([]domain.Assignment, error)
}

type locationRepo interface {
	AppendPing(ctx context.Context, p *domain.LocationPing) error
	LatestPing(ctx context.Context, driverID int64) (*domain.LocationPing, error)
}

type storageOut struct {
	dig.Out

	Orders      orderRepo
	Drivers     driverRepo
	Assignments assignmentRepo
	Locations   locationRepo
	Runner      dispatchtx.Runner
}

// cleanup closes resources in reverse order of acquisition.
type cleanup struct {
	mu  sync.Mutex
	fns []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

func newCleanup() *cleanup { return &cleanup{} }

func (c *cleanup) add(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, namedCloser{name: name, fn: fn})
}

func (c *cleanup) run(logger logx.Logger) {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i].fn(); err != nil {
			logger.Error("close failed",
				logx.String("event", "close_failed"),
				logx.String("resource", fns[i].name),
				logx.Err(err),
			)
		}
	}
}

// readiness collects the pings behind HEAD /healthcheck. Probes are added as
// stores connect and read on every check.
type readiness struct {
	mu     sync.Mutex
	probes []namedProbe
}

type namedProbe struct {
	name  string
	check func(context.Context) error
}

func newReadiness() *readiness { return &readiness{} }

func (r *readiness) add(name string, check func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, namedProbe{name: name, check: check})
}

func (r *readiness) check(ctx context.Context) error {
	r.mu.Lock()
	probes := append([]namedProbe(nil), r.probes...)
	r.mu.Unlock()

	for _, p := range probes {
		if err := p.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

func registerStorage(container *dig.Container, dbConnect dbConnectFunc) error {
	provideStorage := func(
		ctx context.Context, cfg *config.Config, logger logx.Logger, c *cleanup, rd *readiness,
	) (storageOut, error) {
		if cfg.Storage == config.StorageMemory {
			logger.Warn("using in-memory storage",
				logx.String("event", "storage_memory"),
			)
			s := memory.New()
			return storageOut{
				Orders:      s.Orders(),
				Drivers:     s.Drivers(),
				Assignments: s.Assignments(),
				Locations:   s.Locations(),
				Runner:      s.Dispatch(),
			}, nil
		}

		pool, err := dbConnect(ctx, logger, cfg.DB.DSN(), 10, time.Second)
		if err != nil {
			return storageOut{}, err
		}
		c.add("postgres", func() error { pool.Close(); return nil })
		rd.add("postgres", pool.Ping)
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return storageOut{}, err
		}
		return storageOut{
			Orders:      repository.NewOrderRepo(pool),
			Drivers:     repository.NewDriverRepo(pool),
			Assignments: repository.NewAssignmentRepo(pool),
			Locations:   repository.NewLocationRepo(pool),
			Runner:      repository.NewDispatchRepo(pool),
		}, nil
	}
	return provideAll(container, provideStorage, provideRedis)
}

// provideRedis returns nil when REDIS_URL is empty; callers fall back to
// in-process implementations.
func provideRedis(
	ctx context.Context, cfg *config.Config, logger logx.Logger, c *cleanup, rd *readiness,
) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c.add("redis", func() error {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
		return nil
	})
	rd.add("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	logger.Info("redis connected", logx.String("event", "redis_connected"), logx.String("addr", opts.Addr))
	return client, nil
}
