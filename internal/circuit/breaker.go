package circuit

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed BreakerState = "closed" // Normal operation
	StateOpen   BreakerState = "open"   // Trading halted until manual resume
)

// Reasons returned by CanTrade
const (
	ReasonPaused            = "trading_paused"
	ReasonDailyLoss         = "daily_loss_limit"
	ReasonConsecutiveLosses = "consecutive_losses"
	ReasonMinBalance        = "min_balance"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled" yaml:"enabled"`
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`         // Realized loss today vs day-start balance
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"` // Losing trades in a row
	MinBalanceFraction   float64 `json:"min_balance_fraction" yaml:"min_balance_fraction"`     // Of the original initial balance
	EmergencyDrawdownPct float64 `json:"emergency_drawdown_pct" yaml:"emergency_drawdown_pct"` // Peak-to-current drawdown that pauses trading
}

// DefaultCircuitBreakerConfig returns safe defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:              true,
		MaxDailyLossPct:      10.0,
		MaxConsecutiveLosses: 5,
		MinBalanceFraction:   0.5,
		EmergencyDrawdownPct: 25.0,
	}
}

// Snapshot is the slice of account state the breaker evaluates.
// DailyRealizedLoss must already be zero when the trading day has rolled over.
type Snapshot struct {
	TradingPaused     bool
	ConsecutiveLosses int
	CurrentBalance    decimal.Decimal
	InitialBalance    decimal.Decimal
	DayStartBalance   decimal.Decimal
	DailyRealizedLoss decimal.Decimal
	MaxDrawdownPct    decimal.Decimal
}

// CircuitBreaker is a stateless admission gate over ledger state.
// The pause flag itself lives in the ledger so it is persisted with the account.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{config: config}
}

// CanTrade checks if a new position may be opened
func (cb *CircuitBreaker) CanTrade(s Snapshot) (bool, string) {
	if s.TradingPaused {
		return false, ReasonPaused
	}
	if !cb.config.Enabled {
		return true, ""
	}

	if cb.config.MaxDailyLossPct > 0 {
		lossPct := DailyLossPct(s)
		if lossPct.GreaterThan(decimal.NewFromFloat(cb.config.MaxDailyLossPct)) {
			return false, fmt.Sprintf("%s: %s%% > %.2f%%", ReasonDailyLoss,
				lossPct.StringFixed(2), cb.config.MaxDailyLossPct)
		}
	}

	if cb.config.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= cb.config.MaxConsecutiveLosses {
		return false, fmt.Sprintf("%s: %d", ReasonConsecutiveLosses, s.ConsecutiveLosses)
	}

	if cb.config.MinBalanceFraction > 0 && s.InitialBalance.IsPositive() {
		floor := s.InitialBalance.Mul(decimal.NewFromFloat(cb.config.MinBalanceFraction))
		if s.CurrentBalance.LessThan(floor) {
			return false, fmt.Sprintf("%s: %s < %s", ReasonMinBalance,
				s.CurrentBalance.StringFixed(4), floor.StringFixed(4))
		}
	}

	return true, ""
}

// ShouldEmergencyStop reports whether the drawdown breach requires pausing.
// Already-paused accounts never re-trip.
func (cb *CircuitBreaker) ShouldEmergencyStop(s Snapshot) bool {
	if s.TradingPaused || cb.config.EmergencyDrawdownPct <= 0 {
		return false
	}
	return s.MaxDrawdownPct.GreaterThanOrEqual(decimal.NewFromFloat(cb.config.EmergencyDrawdownPct))
}

// State maps a snapshot to the breaker state
func (cb *CircuitBreaker) State(s Snapshot) BreakerState {
	if s.TradingPaused {
		return StateOpen
	}
	return StateClosed
}

// GetConfig returns a copy of the current configuration
func (cb *CircuitBreaker) GetConfig() CircuitBreakerConfig {
	return *cb.config
}

// DailyLossPct returns today's realized losses as a percentage of the day-start balance
func DailyLossPct(s Snapshot) decimal.Decimal {
	if !s.DayStartBalance.IsPositive() {
		return decimal.Zero
	}
	return s.DailyRealizedLoss.Div(s.DayStartBalance).Mul(decimal.NewFromInt(100))
}
