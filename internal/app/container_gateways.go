package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"googlemaps.github.io/maps"

	"courier-dispatch/internal/cache"
	"courier-dispatch/internal/config"
	"courier-dispatch/internal/gateway/geocoding"
	"courier-dispatch/internal/gateway/notify"
	"courier-dispatch/internal/gateway/retry"
	"courier-dispatch/internal/gateway/routing"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
	"courier-dispatch/internal/realtime"
)

func registerGateways(container *dig.Container) error {
	return provideAll(container,
		provideRetrier,
		provideMapsClient,
		provideGeocoder,
		provideRouting,
		provideNotifier,
		provideBroker,
		func(b realtime.Broker) realtime.Subscriber { return b },
		providePositions,
		func(b realtime.Broker, r *retry.Retrier, m *metrics.Set, logger logx.Logger) *realtime.Emitter {
			return realtime.NewEmitter(b, r, m.PublishFailures, logger)
		},
	)
}

func provideRetrier(cfg *config.Config, m *metrics.Set, logger logx.Logger) *retry.Retrier {
	return retry.New(logger, m.GatewayRetries, retry.Config{
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseDelay:   cfg.Notify.BaseDelay,
		MaxDelay:    cfg.Notify.MaxDelay,
	}, retry.IsRetryable)
}

// provideMapsClient returns nil without an API key.
func provideMapsClient(cfg *config.Config) (*maps.Client, error) {
	if cfg.Maps.APIKey == "" {
		return nil, nil
	}
	c, err := maps.NewClient(maps.WithAPIKey(cfg.Maps.APIKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return c, nil
}

func provideGeocoder(cfg *config.Config, client *maps.Client, r *retry.Retrier, logger logx.Logger) geocoding.Geocoder {
	if client == nil {
		logger.Warn("maps api key missing, orders without coordinates need manual dispatch",
			logx.String("event", "geocoder_disabled"),
		)
		return geocoding.Unavailable{}
	}
	return geocoding.NewRetrying(geocoding.NewGoogle(client, cfg.Maps.Region, cfg.Maps.Language), r)
}

func provideRouting(cfg *config.Config, client *maps.Client) routing.Provider {
	if client == nil {
		return routing.StraightLine{}
	}
	return routing.NewGoogle(client, cfg.Maps.Language)
}

func provideNotifier(
	ctx context.Context,
	cfg *config.Config,
	r *retry.Retrier,
	m *metrics.Set,
	logger logx.Logger,
) (notify.Notifier, error) {
	var next notify.Notifier = notify.NewLog(logger)
	if cfg.Firebase.ProjectID != "" {
		client, err := notify.NewFCMClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		next = notify.NewFCM(client, logger)
	}
	return notify.NewRetrying(next, r, m.PublishFailures, logger), nil
}

func provideBroker(client *redis.Client, logger logx.Logger) realtime.Broker {
	if client == nil {
		return realtime.NewHub(logger)
	}
	return realtime.NewRedisBroker(client, logger)
}

func providePositions(cfg *config.Config, client *redis.Client) cache.PositionCache {
	if client == nil {
		return cache.NewMemoryPositions()
	}
	// a position older than a few missed pings is not worth serving
	return cache.NewRedisPositions(client, 10*cfg.Tracking.PingInterval)
}
