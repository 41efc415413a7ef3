// Package ledger tracks the synthetic account and the single open position
// for one instrument. Every mutation happens under one mutex and is persisted
// before the lock is released.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitget-webhook-bot/internal/circuit"
	"bitget-webhook-bot/internal/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrPositionOpen = errors.New("ledger: position is open")
	ErrNotPaused    = errors.New("ledger: trading is not paused")
)

var hundred = decimal.NewFromInt(100)

// Store persists ledger state. Load returns nil, nil when nothing was saved yet.
type Store interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (*State, error)
}

// PositionWatcher starts monitoring a freshly opened position.
// Watch is called with the ledger lock held and must not call back into the
// Ledger before returning.
type PositionWatcher interface {
	Watch(pos Position)
}

// Liquidator flattens the live exchange position during an emergency stop
type Liquidator interface {
	CloseAllPositions(ctx context.Context, symbol string) error
}

// Config holds ledger parameters
type Config struct {
	Symbol         string
	InitialBalance decimal.Decimal
	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	Location       *time.Location // trading day boundary, UTC when nil
	Phase          PhaseConfig
}

// Ledger owns the account and position for one instrument
type Ledger struct {
	mu       sync.Mutex
	cfg      Config
	account  Account
	position *Position
	exiting  uuid.UUID // position with an exit order in flight

	store      Store
	breaker    *circuit.CircuitBreaker
	phase      PhaseController
	bus        *events.EventBus
	watcher    PositionWatcher
	liquidator Liquidator
	logger     zerolog.Logger

	now                func() time.Time
	liquidationTimeout time.Duration
	saveTimeout        time.Duration
}

// New creates a ledger with a fresh account at the configured initial balance.
// Call Load to restore a persisted snapshot.
func New(cfg Config, store Store, breaker *circuit.CircuitBreaker, bus *events.EventBus, logger zerolog.Logger) *Ledger {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if breaker == nil {
		breaker = circuit.NewCircuitBreaker(nil)
	}
	return &Ledger{
		cfg:                cfg,
		account:            NewAccount(cfg.InitialBalance, cfg.InitialBalance),
		store:              store,
		breaker:            breaker,
		phase:              NewPhaseController(cfg.Phase),
		bus:                bus,
		logger:             logger.With().Str("component", "ledger").Str("symbol", cfg.Symbol).Logger(),
		now:                func() time.Time { return time.Now().UTC() },
		liquidationTimeout: 15 * time.Second,
		saveTimeout:        5 * time.Second,
	}
}

// SetWatcher sets the monitor started for every opened position
func (l *Ledger) SetWatcher(w PositionWatcher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watcher = w
}

// SetLiquidator sets the exchange side used by the emergency stop
func (l *Ledger) SetLiquidator(liq Liquidator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liquidator = liq
}

// SetClock overrides the time source
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Symbol returns the instrument this ledger tracks
func (l *Ledger) Symbol() string {
	return l.cfg.Symbol
}

// Load restores state from the store. A restored position is handed to the watcher.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	st, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if st == nil {
		l.logger.Info().Str("balance", l.account.CurrentBalance.String()).Msg("No snapshot found, starting fresh account")
		l.persistLocked(ctx)
		return nil
	}

	l.account = st.Account
	if l.account.TradeHistory == nil {
		l.account.TradeHistory = []TradeRecord{}
	}
	if !l.account.InitialBalance.IsPositive() {
		l.account.InitialBalance = l.cfg.InitialBalance
	}
	l.position = nil
	if st.Position != nil {
		p := *st.Position
		l.position = &p
		if l.watcher != nil {
			l.watcher.Watch(p)
		}
	}

	l.logger.Info().
		Str("balance", l.account.CurrentBalance.String()).
		Int("total_trades", l.account.TotalTrades).
		Bool("position_open", l.position != nil).
		Bool("trading_paused", l.account.TradingPaused).
		Msg("Ledger restored from snapshot")
	return nil
}

// Open records a new signal-driven position. It is a no-op returning false when
// a position already exists or the inputs are not positive.
func (l *Ledger) Open(ctx context.Context, side Side, entryPrice, quantity decimal.Decimal) bool {
	_, ok := l.open(ctx, side, entryPrice, quantity, SourceSignal)
	return ok
}

// Recover adopts a position found on the exchange. The entry price is the
// current market price since the real entry cannot be recovered.
func (l *Ledger) Recover(ctx context.Context, side Side, quantity, price decimal.Decimal) bool {
	_, ok := l.open(ctx, side, price, quantity, SourceRecovered)
	return ok
}

func (l *Ledger) open(ctx context.Context, side Side, entryPrice, quantity decimal.Decimal, source string) (Position, bool) {
	if side != SideLong && side != SideShort {
		return Position{}, false
	}
	if !entryPrice.IsPositive() || !quantity.IsPositive() {
		return Position{}, false
	}

	l.mu.Lock()
	if l.position != nil {
		existing := *l.position
		l.mu.Unlock()
		l.logger.Debug().
			Str("existing_side", string(existing.Side)).
			Str("requested_side", string(side)).
			Msg("Open ignored, position already exists")
		return Position{}, false
	}

	pos := Position{
		ID:         uuid.New(),
		Side:       side,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		OpenedAt:   l.now(),
		Source:     source,
	}
	pos.TakeProfitPrice, pos.StopLossPrice = l.exitLevels(side, entryPrice)

	l.position = &pos
	l.persistLocked(ctx)
	if l.watcher != nil {
		l.watcher.Watch(pos)
	}
	l.mu.Unlock()

	l.logger.Info().
		Str("position_id", pos.ID.String()).
		Str("side", string(pos.Side)).
		Str("entry", pos.EntryPrice.String()).
		Str("qty", pos.Quantity.String()).
		Str("tp", pos.TakeProfitPrice.String()).
		Str("sl", pos.StopLossPrice.String()).
		Str("source", source).
		Msg("Position opened")

	evType := events.EventTradeOpened
	if source == SourceRecovered {
		evType = events.EventPositionRecovered
	}
	l.bus.Publish(events.Event{
		Type: evType,
		Data: map[string]interface{}{
			"symbol":   l.cfg.Symbol,
			"position": pos,
		},
	})
	return pos, true
}

func (l *Ledger) exitLevels(side Side, entry decimal.Decimal) (tp, sl decimal.Decimal) {
	tpMove := l.cfg.TakeProfitPct.Div(hundred)
	slMove := l.cfg.StopLossPct.Div(hundred)
	one := decimal.NewFromInt(1)
	if side == SideLong {
		return entry.Mul(one.Add(tpMove)), entry.Mul(one.Sub(slMove))
	}
	return entry.Mul(one.Sub(tpMove)), entry.Mul(one.Add(slMove))
}

// Close closes whatever position is open and returns the realized pnl.
// Returns zero without any change when nothing is open.
func (l *Ledger) Close(ctx context.Context, exitPrice decimal.Decimal, reason string) decimal.Decimal {
	pnl, _ := l.close(ctx, nil, exitPrice, reason)
	return pnl
}

// ClosePosition closes the open position only if it is the one identified by id.
// Background actors use it so a stale actor never closes a newer position.
func (l *Ledger) ClosePosition(ctx context.Context, id uuid.UUID, exitPrice decimal.Decimal, reason string) (decimal.Decimal, bool) {
	return l.close(ctx, &id, exitPrice, reason)
}

func (l *Ledger) close(ctx context.Context, id *uuid.UUID, exitPrice decimal.Decimal, reason string) (decimal.Decimal, bool) {
	if !exitPrice.IsPositive() {
		return decimal.Zero, false
	}

	l.mu.Lock()
	if l.position == nil || (id != nil && l.position.ID != *id) {
		l.mu.Unlock()
		return decimal.Zero, false
	}

	pos := *l.position
	now := l.now()
	acct := &l.account

	// (exit-entry)/entry * qty * entry; leverage is already in qty.
	pnl := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	if pos.Side == SideShort {
		pnl = pnl.Neg()
	}

	l.rollDayLocked(now)

	acct.CurrentBalance = acct.CurrentBalance.Add(pnl)
	acct.TotalPnL = acct.TotalPnL.Add(pnl)
	acct.TotalTrades++
	acct.DailyTradeCount++
	if pnl.IsNegative() {
		acct.LossCount++
		acct.ConsecutiveLosses++
		acct.DailyRealizedLoss = acct.DailyRealizedLoss.Add(pnl.Neg())
	} else {
		acct.WinCount++
		acct.ConsecutiveLosses = 0
	}

	if acct.CurrentBalance.GreaterThan(acct.PeakBalance) {
		acct.PeakBalance = acct.CurrentBalance
	}
	if acct.PeakBalance.IsPositive() {
		dd := acct.PeakBalance.Sub(acct.CurrentBalance).Div(acct.PeakBalance).Mul(hundred)
		if dd.GreaterThan(acct.MaxDrawdownPct) {
			acct.MaxDrawdownPct = dd
		}
	}

	rec := TradeRecord{
		PositionID:   pos.ID,
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		Quantity:     pos.Quantity,
		PnL:          pnl,
		BalanceAfter: acct.CurrentBalance,
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     now,
		Reason:       reason,
	}
	acct.TradeHistory = append(acct.TradeHistory, rec)
	l.position = nil
	l.exiting = uuid.Nil

	pending := []events.Event{{
		Type: events.EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":  l.cfg.Symbol,
			"trade":   rec,
			"balance": acct.CurrentBalance.String(),
		},
	}}

	if reset, ok := l.phase.Apply(acct); ok {
		acct.DayStartBalance = acct.CurrentBalance
		l.logger.Info().
			Str("phase", string(reset.Phase)).
			Str("profit", reset.Profit.String()).
			Str("withdrawn", reset.Withdrawn.String()).
			Str("new_starting_balance", reset.NewStartingBalance.String()).
			Int("reset_count", acct.ResetCount).
			Msg("Phase reset")
		pending = append(pending, events.Event{
			Type: events.EventPhaseReset,
			Data: map[string]interface{}{
				"symbol": l.cfg.Symbol,
				"reset":  reset,
			},
		})
	}

	tripped := false
	if l.breaker.ShouldEmergencyStop(l.breakerSnapshotLocked(now)) {
		tripped = true
		acct.TradingPaused = true
		pausedAt := now
		acct.PausedAt = &pausedAt
		acct.PauseReason = fmt.Sprintf("max drawdown %s%% reached emergency threshold %.2f%%",
			acct.MaxDrawdownPct.StringFixed(2), l.breaker.GetConfig().EmergencyDrawdownPct)
		l.logger.Error().
			Str("max_drawdown_pct", acct.MaxDrawdownPct.StringFixed(2)).
			Msg("Emergency stop triggered, trading paused")
		pending = append(pending, events.Event{
			Type: events.EventCircuitBreakerTripped,
			Data: map[string]interface{}{
				"symbol":           l.cfg.Symbol,
				"reason":           acct.PauseReason,
				"max_drawdown_pct": acct.MaxDrawdownPct.String(),
			},
		})
	}

	l.persistLocked(ctx)
	liquidator := l.liquidator
	l.mu.Unlock()

	l.logger.Info().
		Str("position_id", pos.ID.String()).
		Str("reason", reason).
		Str("exit", exitPrice.String()).
		Str("pnl", pnl.String()).
		Str("balance", rec.BalanceAfter.String()).
		Msg("Position closed")

	for _, ev := range pending {
		l.bus.Publish(ev)
	}

	if tripped && liquidator != nil {
		l.liquidate(ctx, liquidator)
	}
	return pnl, true
}

func (l *Ledger) liquidate(ctx context.Context, liquidator Liquidator) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.liquidationTimeout)
	defer cancel()
	if err := liquidator.CloseAllPositions(ctx, l.cfg.Symbol); err != nil {
		l.logger.Error().Err(err).Msg("Emergency force-close on exchange failed")
		l.bus.PublishError("ledger", "emergency force-close failed", err)
	}
}

func (l *Ledger) tradingDay(now time.Time) string {
	return now.In(l.cfg.Location).Format("2006-01-02")
}

// rollDayLocked resets the per-day counters when the trading day changed
func (l *Ledger) rollDayLocked(now time.Time) {
	today := l.tradingDay(now)
	if l.account.LastTradeDate == today {
		return
	}
	l.account.LastTradeDate = today
	l.account.DailyTradeCount = 0
	l.account.DailyRealizedLoss = decimal.Zero
	l.account.DayStartBalance = l.account.CurrentBalance
}

func (l *Ledger) breakerSnapshotLocked(now time.Time) circuit.Snapshot {
	a := l.account
	s := circuit.Snapshot{
		TradingPaused:     a.TradingPaused,
		ConsecutiveLosses: a.ConsecutiveLosses,
		CurrentBalance:    a.CurrentBalance,
		InitialBalance:    a.InitialBalance,
		DayStartBalance:   a.DayStartBalance,
		DailyRealizedLoss: a.DailyRealizedLoss,
		MaxDrawdownPct:    a.MaxDrawdownPct,
	}
	if a.LastTradeDate != l.tradingDay(now) {
		s.DayStartBalance = a.CurrentBalance
		s.DailyRealizedLoss = decimal.Zero
	}
	return s
}

// ShouldTrade reports whether a new signal may open a position
func (l *Ledger) ShouldTrade() bool {
	ok, _ := l.TradeGate()
	return ok
}

// TradeGate is ShouldTrade with the blocking reason
func (l *Ledger) TradeGate() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.breaker.CanTrade(l.breakerSnapshotLocked(l.now()))
}

// Position returns a copy of the open position
func (l *Ledger) Position() (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil {
		return Position{}, false
	}
	return *l.position, true
}

// Holds reports whether the position with id is still the open one
func (l *Ledger) Holds(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position != nil && l.position.ID == id
}

// BeginExit marks the open position as being flattened on the exchange.
// It returns false when id is no longer the open position.
func (l *Ledger) BeginExit(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position == nil || l.position.ID != id {
		return false
	}
	l.exiting = id
	return true
}

// EndExit clears the mark set by BeginExit
func (l *Ledger) EndExit(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exiting == id {
		l.exiting = uuid.Nil
	}
}

// Exiting reports whether the position with id has an exit order in flight
func (l *Ledger) Exiting(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return id != uuid.Nil && l.exiting == id
}

// Account returns a deep copy of the account
func (l *Ledger) Account() Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account.clone()
}

// Snapshot returns the read-only operator view
func (l *Ledger) Snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := Status{
		Account:     l.account.clone(),
		Phase:       l.phase.PhaseOf(l.account.StartingBalance),
		WinRate:     l.account.WinRate().StringFixed(2),
		NextResetAt: l.phase.TriggerBalance(l.account.StartingBalance).StringFixed(4),
	}
	// yesterday's counters read as a fresh day until the next close rolls them
	if st.Account.LastTradeDate != l.tradingDay(now) {
		st.Account.DailyTradeCount = 0
		st.Account.DailyRealizedLoss = decimal.Zero
		st.Account.DayStartBalance = st.Account.CurrentBalance
	}
	if l.position != nil {
		p := *l.position
		st.Position = &p
	}
	st.CanTrade, st.BlockedReason = l.breaker.CanTrade(l.breakerSnapshotLocked(now))
	return st
}

// State returns the persistable form of the ledger
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Ledger) stateLocked() State {
	st := State{Account: l.account.clone()}
	if l.position != nil {
		p := *l.position
		st.Position = &p
	}
	return st
}

// Resume clears an emergency stop. The drawdown high-water mark is rebased to
// the current balance so the same drawdown cannot immediately re-trip.
func (l *Ledger) Resume(ctx context.Context) error {
	l.mu.Lock()
	if !l.account.TradingPaused {
		l.mu.Unlock()
		return ErrNotPaused
	}
	reason := l.account.PauseReason
	l.account.TradingPaused = false
	l.account.PausedAt = nil
	l.account.PauseReason = ""
	l.account.MaxDrawdownPct = decimal.Zero
	l.account.PeakBalance = l.account.CurrentBalance
	l.persistLocked(ctx)
	balance := l.account.CurrentBalance
	l.mu.Unlock()

	l.logger.Warn().Str("previous_reason", reason).Msg("Trading resumed by operator")
	l.bus.Publish(events.Event{
		Type: events.EventTradingResumed,
		Data: map[string]interface{}{
			"symbol":          l.cfg.Symbol,
			"previous_reason": reason,
			"balance":         balance.String(),
		},
	})
	return nil
}

// Reset re-creates the account at the current starting balance.
// Refused while a position is open.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	if l.position != nil {
		l.mu.Unlock()
		return ErrPositionOpen
	}
	starting := l.account.StartingBalance
	l.account = NewAccount(l.account.InitialBalance, starting)
	l.persistLocked(ctx)
	l.mu.Unlock()

	l.logger.Warn().Str("starting_balance", starting.String()).Msg("Ledger reset by operator")
	l.bus.Publish(events.Event{
		Type: events.EventLedgerReset,
		Data: map[string]interface{}{
			"symbol":           l.cfg.Symbol,
			"starting_balance": starting.String(),
		},
	})
	return nil
}

// MarkSynced records a reconciliation pass that found ledger and exchange in agreement
func (l *Ledger) MarkSynced(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.account.LastSyncAt = &now
	l.persistLocked(ctx)
}

// persistLocked saves the current state. The save outlives a cancelled caller
// since the mutation it records has already happened. A failed save is logged
// and the in-memory state stays authoritative.
func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.saveTimeout)
	defer cancel()
	if err := l.store.Save(ctx, l.stateLocked()); err != nil {
		l.logger.Error().Err(err).Msg("Failed to persist ledger snapshot")
		l.bus.PublishError("ledger", "snapshot save failed", err)
	}
}
