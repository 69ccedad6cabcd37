package app

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/http/middleware/ratelimit"
	"courier-dispatch/internal/http/pprofserver"
	"courier-dispatch/internal/http/router"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/realtime"
	"courier-dispatch/internal/service/dispatch"
	"courier-dispatch/internal/service/driver"
	"courier-dispatch/internal/service/timeline"
	"courier-dispatch/internal/service/tracking"
)

type pprofOut struct {
	dig.Out

	Server *http.Server `name:"pprof_server"`
}

type routerIn struct {
	dig.In

	Logger      logx.Logger
	Base        *handlers.Handlers
	Orders      *handlers.OrderHandler
	Drivers     *handlers.DriverHandler
	Assignments *handlers.AssignmentHandler
	RateLimit   *ratelimit.Middleware
}

func registerHTTP(container *dig.Container) error {
	return provideAll(container,
		func(logger logx.Logger, rd *readiness) *handlers.Handlers {
			return handlers.New(logger, rd.check)
		},
		func(logger logx.Logger, d *dispatch.Dispatcher, tl *timeline.Builder, tr *tracking.Tracker, sub realtime.Subscriber) *handlers.OrderHandler {
			return handlers.NewOrderHandler(logger, d, tl, tr, sub)
		},
		func(logger logx.Logger, drivers *driver.Service, tr *tracking.Tracker, sub realtime.Subscriber) *handlers.DriverHandler {
			return handlers.NewDriverHandler(logger, drivers, tr, sub)
		},
		func(logger logx.Logger, d *dispatch.Dispatcher) *handlers.AssignmentHandler {
			return handlers.NewAssignmentHandler(logger, d)
		},
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		func(in routerIn) http.Handler {
			return router.New(router.Deps{
				Logger:      in.Logger,
				Base:        in.Base,
				Orders:      in.Orders,
				Drivers:     in.Drivers,
				Assignments: in.Assignments,
				RateLimit:   in.RateLimit.Handler(),
			})
		},
		newHTTPServer,
		newPprofServer,
	)
}

// newHTTPServer leaves WriteTimeout at zero because event streams stay open;
// the router bounds ordinary requests.
func newHTTPServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func newPprofServer(cfg *config.Config) pprofOut {
	if !cfg.Pprof.Enabled {
		return pprofOut{}
	}
	return pprofOut{Server: pprofserver.NewServer(pprofserver.Config{
		Addr: cfg.Pprof.Addr,
		User: cfg.Pprof.User,
		Pass: cfg.Pprof.Pass,
	})}
}
