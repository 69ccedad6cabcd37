package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/dig"

	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/transport/kafka"
)

// WorkerRunner runs the order events worker.
type WorkerRunner struct {
	runFn func(*dig.Container) error
}

// NewWorkerRunner returns a new WorkerRunner
func NewWorkerRunner() *WorkerRunner {
	return &WorkerRunner{runFn: runWorker}
}

// MustRun consumes order events until the container context is done and
// panics on any other failure.
func (r *WorkerRunner) MustRun(container *dig.Container) {
	err := r.runFn(container)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	panic(err)
}

type workerIn struct {
	dig.In

	Ctx      context.Context
	Logger   logx.Logger
	Consumer *kafka.Consumer
	Sweeper  sweeper
	Cleanup  *cleanup
}

func runWorker(container *dig.Container) error {
	return container.Invoke(workerRun)
}

func workerRun(in workerIn) error {
	if in.Consumer == nil {
		return fmt.Errorf("kafka consumer is nil: worker container misconfigured")
	}
	defer closeWorker(in)

	sweepCtx, stop := context.WithCancel(in.Ctx)
	defer stop()
	go in.Sweeper.RunSweeper(sweepCtx)

	in.Logger.Info("service-dispatch-worker started", logx.String("event", "worker_started"))
	return in.Consumer.Run(in.Ctx)
}

func closeWorker(in workerIn) {
	if err := in.Consumer.Close(); err != nil {
		in.Logger.Error("kafka close error",
			logx.String("event", "kafka_close_failed"),
			logx.Err(err),
		)
	}
	if in.Sweeper != nil {
		in.Sweeper.Close()
	}
	if in.Cleanup != nil {
		in.Cleanup.run(in.Logger)
	}
}
