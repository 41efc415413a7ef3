package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bitget-webhook-bot/internal/ledger"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SnapshotKeyPrefix is the key prefix for ledger snapshots.
// Format: ledger:snapshot:{symbol}
const SnapshotKeyPrefix = "ledger:snapshot"

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient creates a client and verifies it with a ping
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return client, nil
}

// RedisStore keeps the latest snapshot in Redis with an in-memory fallback
// for when Redis is unreachable.
type RedisStore struct {
	client         redis.UniversalClient
	key            string
	logger         zerolog.Logger
	redisAvailable atomic.Bool

	mu       sync.RWMutex
	fallback []byte
	now      func() time.Time
}

// NewRedisStore creates a store for symbol. A nil client runs memory-only.
func NewRedisStore(client redis.UniversalClient, symbol string, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client: client,
		key:    fmt.Sprintf("%s:%s", SnapshotKeyPrefix, symbol),
		logger: logger.With().Str("component", "redis-store").Logger(),
		now:    time.Now,
	}
	s.redisAvailable.Store(client != nil)
	return s
}

// Key returns the Redis key holding the snapshot
func (s *RedisStore) Key() string {
	return s.key
}

// Save writes the snapshot and its timestamp in one transaction
func (s *RedisStore) Save(ctx context.Context, st ledger.State) error {
	now := s.now()
	data, err := Encode(st, now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.fallback = data
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, data, 0)
	pipe.Set(ctx, s.key+":saved_at", now.UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		if s.redisAvailable.Swap(false) {
			s.logger.Warn().Err(err).Msg("Redis unavailable, snapshot kept in memory")
		}
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	if !s.redisAvailable.Swap(true) {
		s.logger.Info().Msg("Redis available again")
	}
	return nil
}

// Load reads the snapshot, falling back to the last in-memory copy
func (s *RedisStore) Load(ctx context.Context) (*ledger.State, error) {
	var data []byte
	if s.client != nil {
		raw, err := s.client.Get(ctx, s.key).Bytes()
		switch {
		case err == nil:
			data = raw
		case errors.Is(err, redis.Nil):
		default:
			s.logger.Warn().Err(err).Msg("Redis read failed, using in-memory snapshot")
		}
	}
	if data == nil {
		s.mu.RLock()
		data = s.fallback
		s.mu.RUnlock()
	}
	if data == nil {
		return nil, nil
	}

	snap, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &ledger.State{Account: snap.Account, Position: snap.Position}, nil
}

// IsAvailable reports whether the last Redis operation succeeded
func (s *RedisStore) IsAvailable() bool {
	return s.redisAvailable.Load()
}
