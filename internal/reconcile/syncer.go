// Package reconcile keeps the ledger's belief about the open position in
// line with the exchange.
package reconcile

import (
	"context"
	"time"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger is the slice of the ledger the syncer drives
type Ledger interface {
	Symbol() string
	Position() (ledger.Position, bool)
	Exiting(id uuid.UUID) bool
	ClosePosition(ctx context.Context, id uuid.UUID, exitPrice decimal.Decimal, reason string) (decimal.Decimal, bool)
	Recover(ctx context.Context, side ledger.Side, quantity, price decimal.Decimal) bool
	MarkSynced(ctx context.Context)
}

// Action is what one pass of the syncer did
type Action string

const (
	ActionNone          Action = "none"
	ActionInSync        Action = "in_sync"
	ActionExternalClose Action = "external_close"
	ActionRecovered     Action = "recovered"
	ActionSideMismatch  Action = "side_mismatch"
	ActionSkipped       Action = "skipped"
)

// Config holds reconciliation settings
type Config struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultConfig syncs every 30 seconds
func DefaultConfig() Config {
	return Config{Enabled: true, Interval: 30 * time.Second}
}

// Syncer periodically compares the ledger with the exchange and repairs drift
type Syncer struct {
	ledger  Ledger
	gateway exchange.Gateway
	cfg     Config
	bus     *events.EventBus
	logger  zerolog.Logger
}

// NewSyncer creates a syncer
func NewSyncer(l Ledger, gateway exchange.Gateway, cfg Config, bus *events.EventBus, logger zerolog.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Syncer{
		ledger:  l,
		gateway: gateway,
		cfg:     cfg,
		bus:     bus,
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
}

// Run syncs once immediately and then every interval until ctx is done
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Reconciliation started")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Reconciliation stopped")
			return nil
		}
		s.SyncOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reconciliation stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SyncOnce runs a single reconciliation pass
func (s *Syncer) SyncOnce(ctx context.Context) Action {
	symbol := s.ledger.Symbol()

	remote, err := s.gateway.GetOpenPosition(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Exchange position unavailable, skipping sync")
		return ActionSkipped
	}
	local, hasLocal := s.ledger.Position()
	if hasLocal && s.ledger.Exiting(local.ID) {
		// the monitor records its own close
		s.logger.Debug().Str("position_id", local.ID.String()).Msg("Exit order in flight, skipping sync")
		return ActionSkipped
	}

	switch {
	case !hasLocal && remote == nil:
		s.ledger.MarkSynced(ctx)
		return ActionNone

	case hasLocal && remote == nil:
		price, ok := s.price(ctx, symbol)
		if !ok {
			return ActionSkipped
		}
		if _, closed := s.ledger.ClosePosition(ctx, local.ID, price, ledger.ReasonExternalClose); !closed {
			return ActionSkipped
		}
		s.logger.Warn().Str("position_id", local.ID.String()).Str("exit", price.String()).
			Msg("Position closed outside the bot")
		s.report(ActionExternalClose, local.Side, price)
		s.ledger.MarkSynced(ctx)
		return ActionExternalClose

	case !hasLocal && remote != nil:
		price, ok := s.price(ctx, symbol)
		if !ok {
			return ActionSkipped
		}
		if !s.ledger.Recover(ctx, remote.Side, remote.Quantity, price) {
			return ActionSkipped
		}
		s.logger.Warn().Str("side", string(remote.Side)).Str("qty", remote.Quantity.String()).
			Str("price", price.String()).Msg("Recovered untracked exchange position")
		s.report(ActionRecovered, remote.Side, price)
		s.ledger.MarkSynced(ctx)
		return ActionRecovered

	case local.Side != remote.Side:
		price, ok := s.price(ctx, symbol)
		if !ok {
			return ActionSkipped
		}
		if _, closed := s.ledger.ClosePosition(ctx, local.ID, price, ledger.ReasonSideMismatch); !closed {
			return ActionSkipped
		}
		s.ledger.Recover(ctx, remote.Side, remote.Quantity, price)
		s.logger.Warn().
			Str("ledger_side", string(local.Side)).
			Str("exchange_side", string(remote.Side)).
			Str("price", price.String()).
			Msg("Side mismatch, adopted exchange position")
		s.report(ActionSideMismatch, remote.Side, price)
		s.ledger.MarkSynced(ctx)
		return ActionSideMismatch
	}

	s.ledger.MarkSynced(ctx)
	return ActionInSync
}

func (s *Syncer) price(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	price, err := s.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Price unavailable, skipping sync")
		return decimal.Zero, false
	}
	return price, true
}

func (s *Syncer) report(action Action, side ledger.Side, price decimal.Decimal) {
	s.bus.Publish(events.Event{
		Type: events.EventSyncAction,
		Data: map[string]interface{}{
			"symbol": s.ledger.Symbol(),
			"action": string(action),
			"side":   string(side),
			"price":  price.String(),
		},
	})
}
