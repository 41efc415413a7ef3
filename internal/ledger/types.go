package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide accepts long/short as well as BUY/SELL
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position sources
const (
	SourceSignal    = "signal"
	SourceRecovered = "recovered"
)

// Close reasons
const (
	ReasonTakeProfit    = "TP"
	ReasonStopLoss      = "SL"
	ReasonEmergency     = "emergency"
	ReasonExternalClose = "external_close"
	ReasonSideMismatch  = "side_mismatch"
	ReasonSignalFlip    = "signal_flip"
	ReasonSignalClose   = "signal_close"
)

// Phase of the compounding controller
type Phase string

const (
	PhaseGrowth     Phase = "growth"
	PhaseExtraction Phase = "extraction"
)

// Position is the single synthetic position tracked for the instrument
type Position struct {
	ID              uuid.UUID       `json:"id"`
	Side            Side            `json:"side"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	Quantity        decimal.Decimal `json:"quantity"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	OpenedAt        time.Time       `json:"opened_at"`
	Source          string          `json:"source"`
}

// HitsTakeProfit reports whether price has reached the take-profit level
func (p Position) HitsTakeProfit(price decimal.Decimal) bool {
	if p.Side == SideLong {
		return price.GreaterThanOrEqual(p.TakeProfitPrice)
	}
	return price.LessThanOrEqual(p.TakeProfitPrice)
}

// HitsStopLoss reports whether price has reached the stop-loss level
func (p Position) HitsStopLoss(price decimal.Decimal) bool {
	if p.Side == SideLong {
		return price.LessThanOrEqual(p.StopLossPrice)
	}
	return price.GreaterThanOrEqual(p.StopLossPrice)
}

// TradeRecord is one closed trade in the append-only history
type TradeRecord struct {
	PositionID   uuid.UUID       `json:"position_id"`
	Side         Side            `json:"side"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	PnL          decimal.Decimal `json:"pnl"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     time.Time       `json:"closed_at"`
	Reason       string          `json:"reason"`
}

// Account is the synthetic equity and counters for one instrument
type Account struct {
	InitialBalance  decimal.Decimal `json:"initial_balance"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	PeakBalance     decimal.Decimal `json:"peak_balance"`
	MaxDrawdownPct  decimal.Decimal `json:"max_drawdown_pct"`

	TotalTrades       int             `json:"total_trades"`
	WinCount          int             `json:"win_count"`
	LossCount         int             `json:"loss_count"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	TotalPnL          decimal.Decimal `json:"total_pnl"`
	TradeHistory      []TradeRecord   `json:"trade_history"`

	ResetCount            int             `json:"reset_count"`
	GrowthPhaseResets     int             `json:"growth_phase_resets"`
	ExtractionPhaseResets int             `json:"extraction_phase_resets"`
	TotalWithdrawn        decimal.Decimal `json:"total_withdrawn"`
	TotalProfitRealized   decimal.Decimal `json:"total_profit_realized"`

	TradingPaused bool       `json:"trading_paused"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	PauseReason   string     `json:"pause_reason,omitempty"`

	DailyTradeCount   int             `json:"daily_trade_count"`
	LastTradeDate     string          `json:"last_trade_date"`
	DayStartBalance   decimal.Decimal `json:"day_start_balance"`
	DailyRealizedLoss decimal.Decimal `json:"daily_realized_loss"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// NewAccount creates a fresh account at the given balance
func NewAccount(initial, starting decimal.Decimal) Account {
	return Account{
		InitialBalance:      initial,
		StartingBalance:     starting,
		CurrentBalance:      starting,
		PeakBalance:         starting,
		MaxDrawdownPct:      decimal.Zero,
		TotalPnL:            decimal.Zero,
		TradeHistory:        []TradeRecord{},
		TotalWithdrawn:      decimal.Zero,
		TotalProfitRealized: decimal.Zero,
		DayStartBalance:     starting,
		DailyRealizedLoss:   decimal.Zero,
	}
}

// clone returns a deep copy safe to hand outside the ledger lock
func (a Account) clone() Account {
	out := a
	out.TradeHistory = append([]TradeRecord(nil), a.TradeHistory...)
	if a.PausedAt != nil {
		t := *a.PausedAt
		out.PausedAt = &t
	}
	if a.LastSyncAt != nil {
		t := *a.LastSyncAt
		out.LastSyncAt = &t
	}
	return out
}

// WinRate returns wins over total trades as a percentage
func (a Account) WinRate() decimal.Decimal {
	if a.TotalTrades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(a.WinCount)).
		Div(decimal.NewFromInt(int64(a.TotalTrades))).
		Mul(decimal.NewFromInt(100))
}

// State is the persisted form of the ledger
type State struct {
	Account  Account   `json:"account"`
	Position *Position `json:"position,omitempty"`
}

// Status is the read-only view served to operators
type Status struct {
	Account       Account   `json:"account"`
	Position      *Position `json:"position,omitempty"`
	Phase         Phase     `json:"phase"`
	CanTrade      bool      `json:"can_trade"`
	BlockedReason string    `json:"blocked_reason,omitempty"`
	WinRate       string    `json:"win_rate"`
	NextResetAt   string    `json:"next_reset_at"`
}
