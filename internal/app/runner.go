package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"

	"courier-dispatch/internal/logx"
)

const shutdownTimeout = 15 * time.Second

// Runner runs the HTTP service.
type Runner struct {
	runFn func(*dig.Container) error
	fatal func(string, ...any)
}

// NewRunner returns a Runner bound to the service run loop.
func NewRunner() *Runner {
	return &Runner{runFn: run, fatal: log.Fatalf}
}

// MustRun starts the HTTP service using the provided DI container and
// blocks until its context is done.
func (r *Runner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil {
		return
	}
	logger := containerLogger(container)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutdown requested, exiting", logx.String("event", "shutdown"))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("startup aborted: startup timeout exceeded", logx.String("event", "startup_timeout"))
	default:
		logger.Error("run error", logx.String("event", "run_failed"), logx.Err(err))
		fatal := r.fatal
		if fatal == nil {
			fatal = log.Fatalf
		}
		fatal("run error: %v", err)
	}
}

func containerLogger(container *dig.Container) logx.Logger {
	logger := logx.Nop()
	_ = container.Invoke(func(l logx.Logger) { logger = l })
	return logger
}

type appIn struct {
	dig.In

	Ctx     context.Context
	Logger  logx.Logger
	Server  *http.Server
	Pprof   *http.Server `name:"pprof_server" optional:"true"`
	Sweeper sweeper
	Cleanup *cleanup
}

func run(container *dig.Container) error {
	return container.Invoke(appRun)
}

func appRun(in appIn) error {
	errCh := make(chan error, 2)
	startServer(in.Server, "api", in.Logger, errCh)
	if in.Pprof != nil {
		startServer(in.Pprof, "pprof", in.Logger, errCh)
	}

	sweepCtx, stopSweep := context.WithCancel(in.Ctx)
	defer stopSweep()
	go in.Sweeper.RunSweeper(sweepCtx)

	var err error
	select {
	case <-in.Ctx.Done():
		err = in.Ctx.Err()
		in.Logger.Info("shutting down service-dispatch", logx.String("event", "shutdown_started"))
	case err = <-errCh:
	}

	stopSweep()
	in.Sweeper.Close()
	gracefulShutdown(in.Server, in.Logger, shutdownTimeout)
	if in.Pprof != nil {
		gracefulShutdown(in.Pprof, in.Logger, shutdownTimeout)
	}
	if in.Cleanup != nil {
		in.Cleanup.run(in.Logger)
	}
	return err
}

func startServer(server *http.Server, name string, logger logx.Logger, errCh chan<- error) {
	go func() {
		logger.Info("http server listening",
			logx.String("event", "http_listen"),
			logx.String("server", name),
			logx.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error",
			logx.String("event", "shutdown_failed"),
			logx.String("addr", srv.Addr),
			logx.Err(err),
		)
	}
}
