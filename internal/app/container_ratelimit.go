package app

import (
	"net/http"
	"strings"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/http/middleware/ratelimit"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
)

func newRateLimiter(cfg *config.Config, clock ratelimit.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewTokenBucketLimiter(clock, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

func newRateLimitClock() ratelimit.Clock {
	return ratelimit.RealClock{}
}

// Probes and scrapes are never throttled.
func newRateLimitMiddleware(logger logx.Logger, m *metrics.Set, limiter ratelimit.Limiter) *ratelimit.Middleware {
	return ratelimit.New(logger, m.RateLimitExceeded, limiter,
		ratelimit.Exempt("/ping", "/healthcheck", "/metrics"),
		ratelimit.KeyBy(rateLimitKey),
	)
}

// rateLimitKey charges location pings to the reporting driver. Fleets often
// sit behind one carrier NAT, so a per-IP bucket would throttle them together.
func rateLimitKey(r *http.Request) string {
	if r.Method == http.MethodPost {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) == 3 && parts[0] == "drivers" && parts[2] == "location" && parts[1] != "" {
			return "driver:" + parts[1]
		}
	}
	return ratelimit.ClientKey(r)
}
