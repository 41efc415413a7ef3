// Package signal turns validated webhook signals into exchange orders and
// ledger mutations.
package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/risk"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignal = errors.New("signal: invalid signal")
	ErrDebounced     = errors.New("signal: debounced")
	ErrTradingHalted = errors.New("signal: trading halted")
)

// Action is the requested direction
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionClose Action = "CLOSE"
)

// ParseAction accepts BUY/LONG, SELL/SHORT and CLOSE in any case
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return ActionLong, nil
	case "SELL", "SHORT":
		return ActionShort, nil
	case "CLOSE":
		return ActionClose, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s)
}

// Side returns the position side for LONG and SHORT
func (a Action) Side() ledger.Side {
	if a == ActionShort {
		return ledger.SideShort
	}
	return ledger.SideLong
}

// Signal is one validated inbound instruction
type Signal struct {
	Action   Action
	Quantity decimal.Decimal // payload quantity, used in signal sizing mode
	Leverage int             // informational, leverage is fixed at startup
}

// Result describes what a signal did
type Result struct {
	Action     Action          `json:"action"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"executed_qty"`
	Opened     bool            `json:"opened"`
	PositionID string          `json:"position_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	Closed     bool            `json:"closed"`
	ClosedPnL  decimal.Decimal `json:"closed_pnl"`
	Skipped    string          `json:"skipped,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Ledger is what the handler needs from the ledger
type Ledger interface {
	Symbol() string
	Position() (ledger.Position, bool)
	Account() ledger.Account
	TradeGate() (bool, string)
	Open(ctx context.Context, side ledger.Side, entryPrice, quantity decimal.Decimal) bool
	ClosePosition(ctx context.Context, id uuid.UUID, exitPrice decimal.Decimal, reason string) (decimal.Decimal, bool)
}

// Handler serialises signals through debounce, flip/close handling,
// the circuit breaker gate, sizing and order placement.
type Handler struct {
	ledger    Ledger
	gateway   exchange.Gateway
	sizer     *risk.Sizer
	debouncer Debouncer
	bus       *events.EventBus
	logger    zerolog.Logger

	mu sync.Mutex
}

// NewHandler creates a signal handler
func NewHandler(l Ledger, gateway exchange.Gateway, sizer *risk.Sizer, debouncer Debouncer, bus *events.EventBus, logger zerolog.Logger) *Handler {
	if debouncer == nil {
		debouncer = NewLocalDebouncer(0)
	}
	return &Handler{
		ledger:    l,
		gateway:   gateway,
		sizer:     sizer,
		debouncer: debouncer,
		bus:       bus,
		logger:    logger.With().Str("component", "signal").Logger(),
	}
}

// Validate checks a signal before it consumes a debounce token
func (h *Handler) Validate(sig Signal) error {
	switch sig.Action {
	case ActionLong, ActionShort, ActionClose:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, sig.Action)
	}
	if sig.Quantity.IsNegative() {
		return fmt.Errorf("%w: negative qty %s", ErrInvalidSignal, sig.Quantity)
	}
	if sig.Action != ActionClose && h.sizer.Config().Mode == risk.SizingSignal && !sig.Quantity.IsPositive() {
		return fmt.Errorf("%w: qty must be positive", ErrInvalidSignal)
	}
	return nil
}

// Handle processes one signal. Errors wrap ErrInvalidSignal, ErrDebounced,
// ErrTradingHalted, exchange.ErrNoPrice or a gateway error.
func (h *Handler) Handle(ctx context.Context, sig Signal) (*Result, error) {
	res, err := h.handle(ctx, sig)
	if err != nil {
		h.logger.Warn().Err(err).Str("action", string(sig.Action)).Msg("Signal rejected")
		h.bus.Publish(events.Event{
			Type: events.EventSignalRejected,
			Data: map[string]interface{}{
				"symbol": h.ledger.Symbol(),
				"action": string(sig.Action),
				"error":  err.Error(),
			},
		})
		return nil, err
	}
	h.bus.Publish(events.Event{
		Type: events.EventSignalReceived,
		Data: map[string]interface{}{
			"symbol": res.Symbol,
			"action": string(res.Action),
			"result": res,
		},
	})
	return res, nil
}

func (h *Handler) handle(ctx context.Context, sig Signal) (*Result, error) {
	if err := h.Validate(sig); err != nil {
		return nil, err
	}
	if !h.debouncer.Allow(ctx) {
		return nil, ErrDebounced
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	symbol := h.ledger.Symbol()
	log := h.logger.With().Str("action", string(sig.Action)).Logger()
	log.Info().Str("qty", sig.Quantity.String()).Int("leverage", sig.Leverage).Msg("Signal received")

	price, err := h.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrNoPrice, err)
	}
	res := &Result{Action: sig.Action, Symbol: symbol, Price: price, Timestamp: time.Now().UTC()}

	pos, open := h.ledger.Position()

	if sig.Action == ActionClose {
		if err := h.gateway.CloseAllPositions(ctx, symbol); err != nil {
			return nil, fmt.Errorf("close positions: %w", err)
		}
		if open {
			res.ClosedPnL, res.Closed = h.ledger.ClosePosition(ctx, pos.ID, price, ledger.ReasonSignalClose)
		}
		if !res.Closed {
			res.Skipped = "no_position"
		}
		log.Info().Bool("closed", res.Closed).Str("pnl", res.ClosedPnL.String()).Msg("Close signal handled")
		return res, nil
	}

	side := sig.Action.Side()
	if open && pos.Side == side {
		res.Skipped = "already_open"
		res.PositionID = pos.ID.String()
		log.Info().Str("position_id", pos.ID.String()).Msg("Same-side signal ignored, position already open")
		return res, nil
	}

	// flat or flipping: flatten the exchange before opening
	if err := h.gateway.CloseAllPositions(ctx, symbol); err != nil {
		return nil, fmt.Errorf("close positions: %w", err)
	}
	if open {
		res.ClosedPnL, res.Closed = h.ledger.ClosePosition(ctx, pos.ID, price, ledger.ReasonSignalFlip)
		log.Info().Str("closed_side", string(pos.Side)).Str("pnl", res.ClosedPnL.String()).Msg("Flipped out of position")
	}

	if ok, reason := h.ledger.TradeGate(); !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradingHalted, reason)
	}

	qty, err := h.sizer.Quantity(h.ledger.Account().CurrentBalance, price, sig.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	order, err := h.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Action:   exchange.ActionOpen,
		Quantity: qty,
	})
	if err != nil {
		return nil, fmt.Errorf("place %s order: %w", side, err)
	}
	res.Quantity = qty
	res.OrderID = order.OrderID

	if !h.ledger.Open(ctx, side, price, qty) {
		res.Skipped = "ledger_busy"
		log.Warn().Str("order_id", order.OrderID).Msg("Order filled but ledger already holds a position, sync will reconcile")
		return res, nil
	}
	res.Opened = true
	if p, ok := h.ledger.Position(); ok {
		res.PositionID = p.ID.String()
	}

	log.Info().
		Str("side", string(side)).
		Str("qty", qty.String()).
		Str("price", price.String()).
		Str("position_value", qty.Mul(price).StringFixed(2)).
		Msg("Position opened from signal")
	return res, nil
}
