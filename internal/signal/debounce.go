package signal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Debouncer admits at most one signal per interval
type Debouncer interface {
	Allow(ctx context.Context) bool
}

// LocalDebouncer is a process-local token bucket with burst 1
type LocalDebouncer struct {
	limiter *rate.Limiter
}

// NewLocalDebouncer creates a debouncer; a non-positive interval admits everything
func NewLocalDebouncer(interval time.Duration) *LocalDebouncer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &LocalDebouncer{limiter: rate.NewLimiter(limit, 1)}
}

func (d *LocalDebouncer) Allow(ctx context.Context) bool {
	return d.limiter.Allow()
}

// RedisDebouncer shares the debounce window between replicas with a
// SET NX PX marker. It falls back to a local limiter while Redis is down.
type RedisDebouncer struct {
	client         redis.UniversalClient
	key            string
	interval       time.Duration
	local          *LocalDebouncer
	redisAvailable atomic.Bool
	logger         zerolog.Logger
}

// NewRedisDebouncer creates a shared debouncer keyed by symbol
func NewRedisDebouncer(client redis.UniversalClient, symbol string, interval time.Duration, logger zerolog.Logger) *RedisDebouncer {
	d := &RedisDebouncer{
		client:   client,
		key:      "signal:debounce:" + symbol,
		interval: interval,
		local:    NewLocalDebouncer(interval),
		logger:   logger.With().Str("component", "signal-debounce").Logger(),
	}
	d.redisAvailable.Store(client != nil)
	return d
}

func (d *RedisDebouncer) Allow(ctx context.Context) bool {
	if d.interval <= 0 {
		return true
	}
	if d.client == nil {
		return d.local.Allow(ctx)
	}

	ok, err := d.client.SetNX(ctx, d.key, time.Now().UTC().Format(time.RFC3339Nano), d.interval).Result()
	if err != nil {
		if d.redisAvailable.Swap(false) {
			d.logger.Warn().Err(err).Msg("Redis unavailable, debouncing locally")
		}
		return d.local.Allow(ctx)
	}
	if !d.redisAvailable.Swap(true) {
		d.logger.Info().Msg("Redis available again for debounce")
	}
	// local bucket tracks admissions too
	if ok {
		d.local.Allow(ctx)
	}
	return ok
}
