package app

import (
	"context"
	"time"

	"go.uber.org/dig"

	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/config"
	"courier-dispatch/internal/gateway/geocoding"
	"courier-dispatch/internal/gateway/notify"
	"courier-dispatch/internal/gateway/routing"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/ports/dispatchtx"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/service/assignment"
	"courier-dispatch/internal/service/candidate"
	"courier-dispatch/internal/service/dispatch"
	"courier-dispatch/internal/service/driver"
	"courier-dispatch/internal/service/eta"
	"courier-dispatch/internal/service/order"
	"courier-dispatch/internal/service/selector"
	"courier-dispatch/internal/service/timeline"
	"courier-dispatch/internal/service/tracking"
)

// sweeper is the part of the dispatcher the runners drive.
type sweeper interface {
	RunSweeper(ctx context.Context)
	Close()
}

type dispatcherIn struct {
	dig.In

	Cfg         *config.Config
	Timeout     operationTimeout
	Logger      logx.Logger
	Metrics     *metrics.Set
	Orders      orderRepo
	Assignments assignmentRepo
	Drivers     driverRepo
	Geocoder    geocoding.Geocoder
	Candidates  *candidate.Filter
	Selector    *selector.Selector
	Transitions *assignment.Machine
	Lifecycle   *order.Machine
	Tracker     *tracking.Tracker
	Timeline    *timeline.Builder
	Emitter     *realtime.Emitter
	Notifier    notify.Notifier
}

func registerDomainServices(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config, drivers driverRepo, t operationTimeout) *candidate.Filter {
			return candidate.NewFilter(drivers, candidatePolicy(cfg), cfg.Dispatch.RecentWindow, time.Duration(t))
		},
		func(cfg *config.Config, runner dispatchtx.Runner, m *metrics.Set, t operationTimeout, logger logx.Logger) *selector.Selector {
			return selector.NewSelector(runner, geo.NewSpeedProfile(), cfg.Dispatch.AcceptanceTimeout, time.Duration(t), m.ClaimConflicts, logger)
		},
		func(runner dispatchtx.Runner, assignments assignmentRepo, t operationTimeout, logger logx.Logger) *assignment.Machine {
			return assignment.NewMachine(runner, assignments, time.Duration(t), logger)
		},
		func(runner dispatchtx.Runner, t operationTimeout, logger logx.Logger) *order.Machine {
			return order.NewMachine(runner, time.Duration(t), logger)
		},
		func(orders orderRepo, t operationTimeout) *timeline.Builder {
			return timeline.NewBuilder(orders, time.Duration(t))
		},
		func(p routing.Provider, m *metrics.Set, t operationTimeout, logger logx.Logger) *eta.Engine {
			return eta.NewEngine(p, m.ETARecomputations, m.ETAProviderFailures, time.Duration(t), logger)
		},
		func(
			cfg *config.Config,
			locations locationRepo,
			drivers driverRepo,
			positions cache.PositionCache,
			assignments assignmentRepo,
			orders orderRepo,
			engine *eta.Engine,
			em *realtime.Emitter,
			t operationTimeout,
			logger logx.Logger,
		) *tracking.Tracker {
			return tracking.NewTracker(locations, drivers, positions, assignments, orders, engine, em,
				tracking.Policy{
					RefreshInterval:       cfg.Tracking.ETARefreshInterval,
					RefreshDistanceMeters: cfg.Tracking.ETARefreshDistanceMeters,
				},
				time.Duration(t), logger)
		},
		newDispatcher,
		func(d *dispatch.Dispatcher) sweeper { return d },
		func(drivers driverRepo, d *dispatch.Dispatcher, t operationTimeout, logger logx.Logger) *driver.Service {
			return driver.NewService(drivers, d, time.Duration(t), logger)
		},
	)
}

func candidatePolicy(cfg *config.Config) candidate.Policy {
	return candidate.Policy{
		MaxDistanceKm: cfg.Dispatch.MaxDistanceKm,
		MinRating:     cfg.Dispatch.MinRating,
	}
}

func newDispatcher(in dispatcherIn) *dispatch.Dispatcher {
	d := in.Cfg.Dispatch
	return dispatch.New(dispatch.Deps{
		Orders:      in.Orders,
		Assignments: in.Assignments,
		Drivers:     in.Drivers,
		Geocoder:    in.Geocoder,
		Candidates:  in.Candidates,
		Selector:    in.Selector,
		Transitions: in.Transitions,
		Lifecycle:   in.Lifecycle,
		Tracker:     in.Tracker,
		Timeline:    in.Timeline,
		Emitter:     in.Emitter,
		Notifier:    in.Notifier,
		Outcomes:    in.Metrics.Assignments,
		Logger:      in.Logger,
	}, dispatch.Config{
		Policy:                  candidatePolicy(in.Cfg),
		AcceptanceTimeout:       d.AcceptanceTimeout,
		MaxReassignmentAttempts: d.MaxReassignmentAttempts,
		NoCandidateRetryDelay:   d.NoCandidateRetryDelay,
		MaxNoCandidateRetries:   d.MaxNoCandidateRetries,
		SweepInterval:           d.OfferSweepInterval,
	}, time.Duration(in.Timeout))
}
