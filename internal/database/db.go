package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger = logger.With().Str("component", "database").Logger()
	logger.Info().Str("database", poolConfig.ConnConfig.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// Migrations creates the trade journal schema
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS ledger_trades (
		id BIGSERIAL PRIMARY KEY,
		position_id UUID NOT NULL UNIQUE,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(8) NOT NULL,
		entry_price NUMERIC(28, 10) NOT NULL,
		exit_price NUMERIC(28, 10) NOT NULL,
		quantity NUMERIC(28, 10) NOT NULL,
		pnl NUMERIC(28, 10) NOT NULL,
		balance_after NUMERIC(28, 10) NOT NULL,
		reason VARCHAR(32) NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_trades_symbol_closed ON ledger_trades(symbol, closed_at DESC)`,

	`CREATE TABLE IF NOT EXISTS ledger_phase_resets (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(32) NOT NULL,
		phase VARCHAR(16) NOT NULL,
		profit NUMERIC(28, 10) NOT NULL,
		reinvested NUMERIC(28, 10) NOT NULL,
		withdrawn NUMERIC(28, 10) NOT NULL,
		previous_starting_balance NUMERIC(28, 10) NOT NULL,
		new_starting_balance NUMERIC(28, 10) NOT NULL,
		reset_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_phase_resets_symbol ON ledger_phase_resets(symbol, reset_at DESC)`,

	`CREATE TABLE IF NOT EXISTS ledger_events (
		id BIGSERIAL PRIMARY KEY,
		symbol VARCHAR(32) NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		payload JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type, occurred_at DESC)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Int("count", len(Migrations)).Msg("Running database migrations")

	for i, migration := range Migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
