package exchange

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RetryConfig bounds every gateway call
type RetryConfig struct {
	MaxRetries      uint64
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns a small bounded retry budget
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		AttemptTimeout:  10 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// RetryGateway wraps a Gateway with a per-attempt timeout and bounded
// exponential backoff. Exhausted retries return the last error.
type RetryGateway struct {
	next   Gateway
	cfg    RetryConfig
	logger zerolog.Logger
}

// NewRetryGateway wraps next
func NewRetryGateway(next Gateway, cfg RetryConfig, logger zerolog.Logger) *RetryGateway {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultRetryConfig().AttemptTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultRetryConfig().MaxInterval
	}
	return &RetryGateway{
		next:   next,
		cfg:    cfg,
		logger: logger.With().Str("component", "exchange-retry").Logger(),
	}
}

func (g *RetryGateway) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialInterval
	b.MaxInterval = g.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, g.cfg.MaxRetries), ctx)
}

func retry[T any](g *RetryGateway, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		defer cancel()

		v, err := fn(attemptCtx)
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, g.policy(ctx), func(err error, wait time.Duration) {
		g.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Exchange call failed, retrying")
	})
}

func (g *RetryGateway) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return retry(g, ctx, "get_price", func(ctx context.Context) (decimal.Decimal, error) {
		return g.next.GetCurrentPrice(ctx, symbol)
	})
}

func (g *RetryGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.ClientOID == "" {
		req.ClientOID = uuid.NewString()
	}
	return retry(g, ctx, "place_order", func(ctx context.Context) (*OrderResult, error) {
		return g.next.PlaceOrder(ctx, req)
	})
}

func (g *RetryGateway) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	return retry(g, ctx, "get_position", func(ctx context.Context) (*Position, error) {
		return g.next.GetOpenPosition(ctx, symbol)
	})
}

func (g *RetryGateway) CloseAllPositions(ctx context.Context, symbol string) error {
	_, err := retry(g, ctx, "close_all", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.CloseAllPositions(ctx, symbol)
	})
	return err
}

// Prepare forwards to the wrapped gateway when it supports account setup
func (g *RetryGateway) Prepare(ctx context.Context, symbol string, leverage int, marginMode string) error {
	p, ok := g.next.(Preparer)
	if !ok {
		return nil
	}
	_, err := retry(g, ctx, "prepare", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Prepare(ctx, symbol, leverage, marginMode)
	})
	return err
}

// IsRetryable reports whether err is transient: timeouts, network failures,
// rate limits and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	if errors.Is(err, ErrOrderRejected) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrNoPrice)
}
