package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sizing modes
const (
	SizingBalance = "balance"
	SizingSignal  = "signal"
)

var ErrSizeTooSmall = errors.New("risk: position size below minimum")

// SizingConfig holds position sizing configuration
type SizingConfig struct {
	Mode         string          `json:"mode" yaml:"mode"`                   // "balance" or "signal"
	RiskPercent  decimal.Decimal `json:"risk_percent" yaml:"risk_percent"`   // share of virtual balance committed as margin
	Leverage     int             `json:"leverage" yaml:"leverage"`           // embedded in quantity
	SafetyBuffer decimal.Decimal `json:"safety_buffer" yaml:"safety_buffer"` // multiplier applied to signal quantities
	Precision    int32           `json:"precision" yaml:"precision"`         // decimal places of the contract size
	MinQuantity  decimal.Decimal `json:"min_quantity" yaml:"min_quantity"`
}

// DefaultSizingConfig returns balance sizing at 100% margin, 9x leverage
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		Mode:         SizingBalance,
		RiskPercent:  decimal.NewFromInt(100),
		Leverage:     9,
		SafetyBuffer: decimal.RequireFromString("0.95"),
		Precision:    1,
		MinQuantity:  decimal.RequireFromString("0.1"),
	}
}

// Sizer converts a signal into an order quantity
type Sizer struct {
	cfg SizingConfig
}

// NewSizer creates a sizer
func NewSizer(cfg SizingConfig) *Sizer {
	if cfg.Mode == "" {
		cfg.Mode = SizingBalance
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	if !cfg.SafetyBuffer.IsPositive() {
		cfg.SafetyBuffer = decimal.NewFromInt(1)
	}
	return &Sizer{cfg: cfg}
}

// Config returns the sizing configuration
func (s *Sizer) Config() SizingConfig {
	return s.cfg
}

// Quantity returns the contract size for a new position.
// balance mode: balance × risk% × leverage / price.
// signal mode: signalQty × safety buffer.
// The result is rounded down to the precision; results under the
// minimum are raised to it when the input was positive.
func (s *Sizer) Quantity(balance, price, signalQty decimal.Decimal) (decimal.Decimal, error) {
	var raw decimal.Decimal
	switch s.cfg.Mode {
	case SizingSignal:
		if !signalQty.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: signal quantity %s", ErrSizeTooSmall, signalQty)
		}
		raw = signalQty.Mul(s.cfg.SafetyBuffer)
	default:
		if !price.IsPositive() || !balance.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: balance %s price %s", ErrSizeTooSmall, balance, price)
		}
		margin := balance.Mul(s.cfg.RiskPercent).Div(decimal.NewFromInt(100))
		raw = margin.Mul(decimal.NewFromInt(int64(s.cfg.Leverage))).Div(price)
	}

	qty := raw.RoundFloor(s.cfg.Precision)
	if qty.LessThan(s.cfg.MinQuantity) {
		qty = s.cfg.MinQuantity
	}
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: computed %s", ErrSizeTooSmall, raw)
	}
	return qty, nil
}
