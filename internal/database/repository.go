package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitget-webhook-bot/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository provides trade journal access
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// InsertTrade records a closed trade. Replays of the same position are ignored.
func (r *Repository) InsertTrade(ctx context.Context, symbol string, rec ledger.TradeRecord) error {
	query := `
		INSERT INTO ledger_trades (position_id, symbol, side, entry_price, exit_price, quantity, pnl, balance_after, reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (position_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		rec.PositionID.String(), symbol, string(rec.Side),
		rec.EntryPrice.String(), rec.ExitPrice.String(), rec.Quantity.String(),
		rec.PnL.String(), rec.BalanceAfter.String(), rec.Reason,
		rec.OpenedAt, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", rec.PositionID, err)
	}
	return nil
}

// InsertPhaseReset records one rebasing of the starting balance
func (r *Repository) InsertPhaseReset(ctx context.Context, symbol string, reset ledger.PhaseReset, at time.Time) error {
	query := `
		INSERT INTO ledger_phase_resets (symbol, phase, profit, reinvested, withdrawn, previous_starting_balance, new_starting_balance, reset_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		symbol, string(reset.Phase),
		reset.Profit.String(), reset.Reinvested.String(), reset.Withdrawn.String(),
		reset.PreviousStarting.String(), reset.NewStartingBalance.String(), at,
	)
	if err != nil {
		return fmt.Errorf("insert phase reset: %w", err)
	}
	return nil
}

// InsertEvent records an operational event with its JSON payload
func (r *Repository) InsertEvent(ctx context.Context, symbol, eventType string, payload map[string]interface{}, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO ledger_events (symbol, event_type, payload, occurred_at) VALUES ($1, $2, $3, $4)`,
		symbol, eventType, data, at,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", eventType, err)
	}
	return nil
}

// RecentTrades returns the newest closed trades for symbol
func (r *Repository) RecentTrades(ctx context.Context, symbol string, limit int) ([]ledger.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT position_id::text, side, entry_price::text, exit_price::text, quantity::text, pnl::text,
		       balance_after::text, reason, opened_at, closed_at
		FROM ledger_trades
		WHERE symbol = $1
		ORDER BY closed_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []ledger.TradeRecord
	for rows.Next() {
		var (
			id, side, reason               string
			entry, exit, qty, pnl, balance string
			rec                            ledger.TradeRecord
		)
		if err := rows.Scan(&id, &side, &entry, &exit, &qty, &pnl, &balance, &reason, &rec.OpenedAt, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if rec.PositionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse position id %q: %w", id, err)
		}
		rec.Side = ledger.Side(side)
		rec.Reason = reason
		for dst, src := range map[*decimal.Decimal]string{
			&rec.EntryPrice:   entry,
			&rec.ExitPrice:    exit,
			&rec.Quantity:     qty,
			&rec.PnL:          pnl,
			&rec.BalanceAfter: balance,
		} {
			if *dst, err = decimal.NewFromString(src); err != nil {
				return nil, fmt.Errorf("parse decimal %q: %w", src, err)
			}
		}
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}
