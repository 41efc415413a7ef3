//go:build integration
// +build integration

package database

import (
	"context"
	"os"
	"testing"
	"time"

	"bitget-webhook-bot/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// getTestDB returns a migrated database for integration tests.
// Skips when DATABASE_URL is not set.
func getTestDB(t *testing.T) *Repository {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: dbURL, MaxConns: 2}, zerolog.Nop())
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.RunMigrations(ctx); err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	return NewRepository(db)
}

func TestIntegration_TradeRoundTrip(t *testing.T) {
	repo := getTestDB(t)
	ctx := context.Background()
	symbol := "TEST" + time.Now().Format("150405") + "_UMCBL"

	rec := ledger.TradeRecord{
		PositionID:   uuid.New(),
		Side:         ledger.SideLong,
		EntryPrice:   decimal.RequireFromString("100"),
		ExitPrice:    decimal.RequireFromString("101.3"),
		Quantity:     decimal.RequireFromString("1.8"),
		PnL:          decimal.RequireFromString("2.34"),
		BalanceAfter: decimal.RequireFromString("22.34"),
		OpenedAt:     time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond),
		ClosedAt:     time.Now().UTC().Truncate(time.Microsecond),
		Reason:       ledger.ReasonTakeProfit,
	}

	if err := repo.InsertTrade(ctx, symbol, rec); err != nil {
		t.Fatalf("InsertTrade failed: %v", err)
	}
	// Replays are ignored
	if err := repo.InsertTrade(ctx, symbol, rec); err != nil {
		t.Fatalf("Replayed InsertTrade failed: %v", err)
	}

	trades, err := repo.RecentTrades(ctx, symbol, 10)
	if err != nil {
		t.Fatalf("RecentTrades failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if !trades[0].PnL.Equal(rec.PnL) || trades[0].PositionID != rec.PositionID {
		t.Errorf("Expected %+v, got %+v", rec, trades[0])
	}
}
