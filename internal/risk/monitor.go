package risk

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

// PositionCloser is the slice of the ledger a monitor needs
type PositionCloser interface {
	Symbol() string
	Holds(id uuid.UUID) bool
	BeginExit(id uuid.UUID) bool
	EndExit(id uuid.UUID)
	ClosePosition(ctx context.Context, id uuid.UUID, exitPrice decimal.Decimal, reason string) (decimal.Decimal, bool)
}

// MonitorConfig holds the TP/SL watch loop settings
type MonitorConfig struct {
	Interval         time.Duration `json:"interval" yaml:"interval"`
	MaxPriceFailures int           `json:"max_price_failures" yaml:"max_price_failures"`
}

// DefaultMonitorConfig returns a 1s poll with a 10 failure budget
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:         time.Second,
		MaxPriceFailures: 10,
	}
}

// Outcome is how a monitor terminated
type Outcome string

const (
	OutcomeTakeProfit   Outcome = "take_profit"
	OutcomeStopLoss     Outcome = "stop_loss"
	OutcomeCleared      Outcome = "cleared"
	OutcomePriceFailure Outcome = "price_failure"
	OutcomeCancelled    Outcome = "cancelled"
)

// Monitor watches one position until it exits
type Monitor struct {
	pos     ledger.Position
	gateway exchange.Gateway
	ledger  PositionCloser
	cfg     MonitorConfig
	bus     *events.EventBus
	logger  zerolog.Logger

	failures  int
	lastPrice decimal.Decimal
}

// NewMonitor creates a monitor for pos
func NewMonitor(pos ledger.Position, gateway exchange.Gateway, l PositionCloser, cfg MonitorConfig, bus *events.EventBus, logger zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorConfig().Interval
	}
	if cfg.MaxPriceFailures <= 0 {
		cfg.MaxPriceFailures = DefaultMonitorConfig().MaxPriceFailures
	}
	return &Monitor{
		pos:     pos,
		gateway: gateway,
		ledger:  l,
		cfg:     cfg,
		bus:     bus,
		logger: logger.With().
			Str("component", "risk-monitor").
			Str("position_id", pos.ID.String()).
			Str("side", string(pos.Side)).
			Logger(),
	}
}

// Run polls the price every interval and blocks until the position exits,
// disappears from the ledger, or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) Outcome {
	m.logger.Info().
		Str("entry", m.pos.EntryPrice.String()).
		Str("tp", m.pos.TakeProfitPrice.String()).
		Str("sl", m.pos.StopLossPrice.String()).
		Msg("Monitoring position")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if outcome, done := m.check(ctx); done {
			m.finish(outcome)
			return outcome
		}
		select {
		case <-ctx.Done():
			m.finish(OutcomeCancelled)
			return OutcomeCancelled
		case <-ticker.C:
		}
	}
}

// check runs one iteration of the watch loop
func (m *Monitor) check(ctx context.Context) (Outcome, bool) {
	if ctx.Err() != nil {
		return OutcomeCancelled, true
	}
	if !m.ledger.Holds(m.pos.ID) {
		return OutcomeCleared, true
	}

	price, err := m.gateway.GetCurrentPrice(ctx, m.ledger.Symbol())
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, true
		}
		m.failures++
		m.logger.Warn().Err(err).Int("failures", m.failures).Msg("Price fetch failed")
		if m.failures > m.cfg.MaxPriceFailures {
			m.emergencyExit(ctx, err)
			return OutcomePriceFailure, true
		}
		return "", false
	}
	m.failures = 0
	m.lastPrice = price

	var reason string
	var outcome Outcome
	switch {
	case m.pos.HitsTakeProfit(price):
		reason, outcome = ledger.ReasonTakeProfit, OutcomeTakeProfit
	case m.pos.HitsStopLoss(price):
		reason, outcome = ledger.ReasonStopLoss, OutcomeStopLoss
	default:
		return "", false
	}

	if !m.ledger.BeginExit(m.pos.ID) {
		return OutcomeCleared, true
	}
	defer m.ledger.EndExit(m.pos.ID)

	_, err = m.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   m.ledger.Symbol(),
		Side:     m.pos.Side,
		Action:   exchange.ActionClose,
		Quantity: m.pos.Quantity,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("reason", reason).Str("price", price.String()).
			Msg("Exit order failed, will retry next tick")
		return "", false
	}

	pnl, closed := m.ledger.ClosePosition(ctx, m.pos.ID, price, reason)
	if !closed {
		return OutcomeCleared, true
	}
	m.logger.Info().Str("reason", reason).Str("exit", price.String()).Str("pnl", pnl.String()).Msg("Position exited")
	return outcome, true
}

func (m *Monitor) emergencyExit(ctx context.Context, cause error) {
	m.logger.Error().Err(cause).Int("failures", m.failures).Msg("Price unavailable, forcing emergency close")
	m.bus.Publish(events.Event{
		Type: events.EventPriceFailure,
		Data: map[string]interface{}{
			"position_id": m.pos.ID.String(),
			"failures":    m.failures,
			"error":       cause.Error(),
		},
	})

	if !m.ledger.BeginExit(m.pos.ID) {
		return
	}
	defer m.ledger.EndExit(m.pos.ID)

	if err := m.gateway.CloseAllPositions(ctx, m.ledger.Symbol()); err != nil {
		m.logger.Error().Err(err).Msg("Emergency close on exchange failed")
	}

	exit := m.lastPrice
	if !exit.IsPositive() {
		exit = m.pos.EntryPrice
	}
	m.ledger.ClosePosition(ctx, m.pos.ID, exit, ledger.ReasonEmergency)
}

func (m *Monitor) finish(outcome Outcome) {
	m.logger.Info().Str("outcome", string(outcome)).Msg("Monitor stopped")
	m.bus.Publish(events.Event{
		Type: events.EventMonitorStopped,
		Data: map[string]interface{}{
			"position_id": m.pos.ID.String(),
			"outcome":     string(outcome),
		},
	})
}
