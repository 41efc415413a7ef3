package config

import (
	"time"

	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/logging"
	"bitget-webhook-bot/internal/reconcile"
	"bitget-webhook-bot/internal/risk"
	"bitget-webhook-bot/internal/store"

	"github.com/shopspring/decimal"
)

// Ledger converts trading and phase settings into ledger parameters
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		Symbol:         c.ExchangeConfig.Symbol,
		InitialBalance: decimal.NewFromFloat(c.TradingConfig.InitialBalance),
		TakeProfitPct:  decimal.NewFromFloat(c.TradingConfig.TakeProfitPct),
		StopLossPct:    decimal.NewFromFloat(c.TradingConfig.StopLossPct),
		Location:       c.Location(),
		Phase: ledger.PhaseConfig{
			ExtractionThreshold: decimal.NewFromFloat(c.PhaseConfig.ExtractionThreshold),
			ResetMultiple:       decimal.NewFromFloat(c.PhaseConfig.ResetMultiple),
			GrowthReinvest:      decimal.NewFromFloat(c.PhaseConfig.GrowthReinvest),
			ExtractionReinvest:  decimal.NewFromFloat(c.PhaseConfig.ExtractionReinvest),
		},
	}
}

// Sizing converts trading settings into sizer parameters
func (c *Config) Sizing() risk.SizingConfig {
	return risk.SizingConfig{
		Mode:         c.TradingConfig.SizingMode,
		RiskPercent:  decimal.NewFromFloat(c.TradingConfig.RiskPercent),
		Leverage:     c.ExchangeConfig.Leverage,
		SafetyBuffer: decimal.NewFromFloat(c.TradingConfig.SafetyBuffer),
		Precision:    int32(c.TradingConfig.QuantityPrecision),
		MinQuantity:  decimal.NewFromFloat(c.TradingConfig.MinQuantity),
	}
}

// Monitor converts the TP/SL watch settings
func (c *Config) Monitor() risk.MonitorConfig {
	return risk.MonitorConfig{
		Interval:         c.MonitorConfig.Interval,
		MaxPriceFailures: c.MonitorConfig.MaxPriceFailures,
	}
}

// Sync converts the reconciliation settings
func (c *Config) Sync() reconcile.Config {
	return reconcile.Config{
		Enabled:  c.SyncConfig.Enabled,
		Interval: c.SyncConfig.Interval,
	}
}

// Retry converts the exchange retry budget
func (c *Config) Retry() exchange.RetryConfig {
	maxRetries := c.ExchangeConfig.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return exchange.RetryConfig{
		MaxRetries:      uint64(maxRetries),
		AttemptTimeout:  c.ExchangeConfig.AttemptTimeout,
		InitialInterval: c.ExchangeConfig.RetryInitial,
		MaxInterval:     c.ExchangeConfig.RetryMax,
	}
}

// Redis converts the Redis connection settings
func (c *Config) Redis() store.RedisConfig {
	return store.RedisConfig{
		Enabled:  c.RedisConfig.Enabled,
		Address:  c.RedisConfig.Address,
		Password: c.RedisConfig.Password,
		DB:       c.RedisConfig.DB,
		PoolSize: c.RedisConfig.PoolSize,
	}
}

// Logging converts the logger settings
func (c *Config) Logging(component string) logging.Config {
	return logging.Config{
		Level:      c.LoggingConfig.Level,
		Output:     c.LoggingConfig.Output,
		Component:  component,
		JSONFormat: c.LoggingConfig.JSONFormat,
	}
}

// ShutdownTimeout returns the graceful shutdown window
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ServerConfig.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ServerConfig.ShutdownTimeout) * time.Second
}
