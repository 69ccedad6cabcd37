package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/orders"
	"courier-dispatch/internal/transport/kafka"
)

func TestWorkerRunner_MustRun_NoPanicOnNil(t *testing.T) {
	r := &WorkerRunner{runFn: func(*dig.Container) error { return nil }}
	require.NotPanics(t, func() { r.MustRun(dig.New()) })
}

func TestWorkerRunner_MustRun_NoPanicOnCancel(t *testing.T) {
	r := &WorkerRunner{runFn: func(*dig.Container) error { return context.Canceled }}
	require.NotPanics(t, func() { r.MustRun(dig.New()) })
}

func TestWorkerRunner_MustRun_PanicsOnOtherError(t *testing.T) {
	sentinel := errors.New("boom")
	r := &WorkerRunner{runFn: func(*dig.Container) error { return sentinel }}
	require.Panics(t, func() { r.MustRun(dig.New()) })
}

func TestWorkerRun_ReturnsError_WhenConsumerNil(t *testing.T) {
	err := workerRun(workerIn{Ctx: context.Background(), Logger: logx.Nop(), Sweeper: &fakeSweeper{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "kafka consumer is nil")
}

// Without brokers the consumer is not built and the worker refuses to start.
func TestWorkerContainer_WithoutKafka(t *testing.T) {
	load := func() (*config.Config, error) {
		cfg, _ := memoryConfig()
		cfg.Kafka.Brokers = nil
		return cfg, nil
	}
	b := NewContainerBuilder().WithConfig(load)
	c, err := b.build(context.Background(), registerWorker)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Invoke(func(s sweeper) { s.Close() }) })

	require.NoError(t, c.Invoke(func(p *orders.Processor, consumer *kafka.Consumer) {
		require.NotNil(t, p)
		require.Nil(t, consumer)
	}))

	err = runWorker(c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "kafka consumer is nil")
}
