package ledger

import (
	"github.com/shopspring/decimal"
)

// PhaseConfig holds compounding controller parameters
type PhaseConfig struct {
	ExtractionThreshold decimal.Decimal // starting balance at which extraction begins
	ResetMultiple       decimal.Decimal // reset when current >= starting * (1 + multiple)
	GrowthReinvest      decimal.Decimal // fraction of profit kept in growth
	ExtractionReinvest  decimal.Decimal // fraction of profit kept in extraction
}

// DefaultPhaseConfig returns the standard compounding schedule
func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{
		ExtractionThreshold: decimal.NewFromInt(1000),
		ResetMultiple:       decimal.NewFromInt(2),
		GrowthReinvest:      decimal.NewFromInt(1),
		ExtractionReinvest:  decimal.RequireFromString("0.05"),
	}
}

// PhaseReset describes one rebasing of the starting balance
type PhaseReset struct {
	Phase              Phase           `json:"phase"`
	Profit             decimal.Decimal `json:"profit"`
	Reinvested         decimal.Decimal `json:"reinvested"`
	Withdrawn          decimal.Decimal `json:"withdrawn"`
	PreviousStarting   decimal.Decimal `json:"previous_starting_balance"`
	NewStartingBalance decimal.Decimal `json:"new_starting_balance"`
}

// PhaseController rebases the account once profit reaches the reset multiple.
// Growth reinvests, extraction withdraws most of the profit.
type PhaseController struct {
	cfg PhaseConfig
}

// NewPhaseController creates a controller. The default schedule applies only
// when cfg is entirely unset; explicit zero fields are kept.
func NewPhaseController(cfg PhaseConfig) PhaseController {
	if cfg.ExtractionThreshold.IsZero() && cfg.ResetMultiple.IsZero() &&
		cfg.GrowthReinvest.IsZero() && cfg.ExtractionReinvest.IsZero() {
		cfg = DefaultPhaseConfig()
	}
	return PhaseController{cfg: cfg}
}

// PhaseOf returns the regime for a starting balance
func (pc PhaseController) PhaseOf(starting decimal.Decimal) Phase {
	if starting.LessThan(pc.cfg.ExtractionThreshold) {
		return PhaseGrowth
	}
	return PhaseExtraction
}

// TriggerBalance is the current balance at which the next reset fires
func (pc PhaseController) TriggerBalance(starting decimal.Decimal) decimal.Decimal {
	return starting.Mul(decimal.NewFromInt(1).Add(pc.cfg.ResetMultiple))
}

// Apply rebases the account when the trigger is reached
func (pc PhaseController) Apply(acct *Account) (PhaseReset, bool) {
	if !acct.StartingBalance.IsPositive() {
		return PhaseReset{}, false
	}
	if acct.CurrentBalance.LessThan(pc.TriggerBalance(acct.StartingBalance)) {
		return PhaseReset{}, false
	}

	phase := pc.PhaseOf(acct.StartingBalance)
	reinvest := pc.cfg.GrowthReinvest
	if phase == PhaseExtraction {
		reinvest = pc.cfg.ExtractionReinvest
	}

	profit := acct.CurrentBalance.Sub(acct.StartingBalance)
	kept := profit.Mul(reinvest)
	withdrawn := profit.Sub(kept)
	newStart := acct.StartingBalance.Add(kept)

	reset := PhaseReset{
		Phase:              phase,
		Profit:             profit,
		Reinvested:         kept,
		Withdrawn:          withdrawn,
		PreviousStarting:   acct.StartingBalance,
		NewStartingBalance: newStart,
	}

	acct.StartingBalance = newStart
	acct.CurrentBalance = newStart
	acct.PeakBalance = newStart
	acct.MaxDrawdownPct = decimal.Zero
	acct.TotalWithdrawn = acct.TotalWithdrawn.Add(withdrawn)
	acct.TotalProfitRealized = acct.TotalProfitRealized.Add(profit)
	acct.ResetCount++
	if phase == PhaseGrowth {
		acct.GrowthPhaseResets++
	} else {
		acct.ExtractionPhaseResets++
	}
	return reset, true
}
