package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitget-webhook-bot/internal/circuit"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ExchangeConfig       ExchangeConfig               `json:"exchange" yaml:"exchange"`
	TradingConfig        TradingConfig                `json:"trading" yaml:"trading"`
	MonitorConfig        MonitorConfig                `json:"monitor" yaml:"monitor"`
	SyncConfig           SyncConfig                   `json:"sync" yaml:"sync"`
	PhaseConfig          PhaseConfig                  `json:"phase" yaml:"phase"`
	CircuitBreakerConfig circuit.CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	WebhookConfig        WebhookConfig                `json:"webhook" yaml:"webhook"`
	ServerConfig         ServerConfig                 `json:"server" yaml:"server"`
	AuthConfig           AuthConfig                   `json:"auth" yaml:"auth"`
	VaultConfig          VaultConfig                  `json:"vault" yaml:"vault"`
	RedisConfig          RedisConfig                  `json:"redis" yaml:"redis"`
	DatabaseConfig       DatabaseConfig               `json:"database" yaml:"database"`
	NATSConfig           NATSConfig                   `json:"nats" yaml:"nats"`
	LoggingConfig        LoggingConfig                `json:"logging" yaml:"logging"`
	PersistenceConfig    PersistenceConfig            `json:"persistence" yaml:"persistence"`
}

// ExchangeConfig holds Bitget futures settings
type ExchangeConfig struct {
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	APIKey            string        `json:"api_key" yaml:"api_key"`
	SecretKey         string        `json:"secret_key" yaml:"secret_key"`
	Passphrase        string        `json:"passphrase" yaml:"passphrase"`
	Symbol            string        `json:"symbol" yaml:"symbol"`
	Leverage          int           `json:"leverage" yaml:"leverage"`
	MarginMode        string        `json:"margin_mode" yaml:"margin_mode"` // fixed (isolated) or crossed
	DryRun            bool          `json:"dry_run" yaml:"dry_run"`         // paper gateway, no real orders
	PaperPrice        float64       `json:"paper_price" yaml:"paper_price"` // seed price when no live ticker is available
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	AttemptTimeout    time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	RetryInitial      time.Duration `json:"retry_initial" yaml:"retry_initial"`
	RetryMax          time.Duration `json:"retry_max" yaml:"retry_max"`
}

// TradingConfig holds ledger and sizing settings
type TradingConfig struct {
	InitialBalance    float64       `json:"initial_balance" yaml:"initial_balance"`
	TakeProfitPct     float64       `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct       float64       `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	Timezone          string        `json:"timezone" yaml:"timezone"`       // IANA zone for the trading day
	SizingMode        string        `json:"sizing_mode" yaml:"sizing_mode"` // balance or signal
	RiskPercent       float64       `json:"risk_percent" yaml:"risk_percent"`
	SafetyBuffer      float64       `json:"safety_buffer" yaml:"safety_buffer"`
	QuantityPrecision int           `json:"quantity_precision" yaml:"quantity_precision"`
	MinQuantity       float64       `json:"min_quantity" yaml:"min_quantity"`
	MinSignalInterval time.Duration `json:"min_signal_interval" yaml:"min_signal_interval"`
}

// MonitorConfig holds TP/SL watch settings
type MonitorConfig struct {
	Interval         time.Duration `json:"interval" yaml:"interval"`
	MaxPriceFailures int           `json:"max_price_failures" yaml:"max_price_failures"`
}

// SyncConfig holds reconciliation settings
type SyncConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// PhaseConfig holds the compounding schedule
type PhaseConfig struct {
	ExtractionThreshold float64 `json:"extraction_threshold" yaml:"extraction_threshold"`
	ResetMultiple       float64 `json:"reset_multiple" yaml:"reset_multiple"`
	GrowthReinvest      float64 `json:"growth_reinvest" yaml:"growth_reinvest"`
	ExtractionReinvest  float64 `json:"extraction_reinvest" yaml:"extraction_reinvest"`
}

// WebhookConfig holds inbound signal settings
type WebhookConfig struct {
	Secret string `json:"secret" yaml:"secret"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port" yaml:"port"`
	Host            string `json:"host" yaml:"host"`
	AllowedOrigins  string `json:"allowed_origins" yaml:"allowed_origins"`   // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout" yaml:"read_timeout"`         // Seconds
	WriteTimeout    int    `json:"write_timeout" yaml:"write_timeout"`       // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" yaml:"shutdown_timeout"` // Seconds
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	JWTSecret           string        `json:"jwt_secret" yaml:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration" yaml:"access_token_duration"`
	AdminUser           string        `json:"admin_user" yaml:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash" yaml:"admin_password_hash"` // bcrypt
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV v2 mount
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path holding the Bitget key triple
}

// RedisConfig holds Redis configuration for snapshot mirroring and debounce
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// DatabaseConfig holds the trade journal connection
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	URL      string `json:"url" yaml:"url"`
	MaxConns int32  `json:"max_conns" yaml:"max_conns"`
	MinConns int32  `json:"min_conns" yaml:"min_conns"`
}

// NATSConfig holds event fan-out settings
type NATSConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	Stream        string `json:"stream" yaml:"stream"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`             // debug, info, warn, error
	Output     string `json:"output" yaml:"output"`           // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format" yaml:"json_format"` // Output as JSON
}

// PersistenceConfig holds snapshot storage settings
type PersistenceConfig struct {
	Path          string `json:"path" yaml:"path"`
	MirrorToRedis bool   `json:"mirror_to_redis" yaml:"mirror_to_redis"`
}

// DefaultConfig returns the settings the bot runs with when nothing is configured
func DefaultConfig() *Config {
	return &Config{
		ExchangeConfig: ExchangeConfig{
			BaseURL:           "https://api.bitget.com",
			Symbol:            "LTCUSDT_UMCBL",
			Leverage:          9,
			MarginMode:        "fixed",
			DryRun:            true,
			RequestsPerSecond: 10,
			MaxRetries:        3,
			AttemptTimeout:    10 * time.Second,
			RetryInitial:      500 * time.Millisecond,
			RetryMax:          5 * time.Second,
		},
		TradingConfig: TradingConfig{
			InitialBalance:    20,
			TakeProfitPct:     1.3,
			StopLossPct:       0.75,
			Timezone:          "UTC",
			SizingMode:        "balance",
			RiskPercent:       100,
			SafetyBuffer:      0.95,
			QuantityPrecision: 1,
			MinQuantity:       0.1,
			MinSignalInterval: 5 * time.Second,
		},
		MonitorConfig: MonitorConfig{
			Interval:         time.Second,
			MaxPriceFailures: 10,
		},
		SyncConfig: SyncConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
		PhaseConfig: PhaseConfig{
			ExtractionThreshold: 1000,
			ResetMultiple:       2,
			GrowthReinvest:      1,
			ExtractionReinvest:  0.05,
		},
		CircuitBreakerConfig: *circuit.DefaultCircuitBreakerConfig(),
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			Enabled:             true,
			AccessTokenDuration: 15 * time.Minute,
			AdminUser:           "admin",
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "bitget-bot/api-keys",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		DatabaseConfig: DatabaseConfig{
			MaxConns: 10,
			MinConns: 1,
		},
		NATSConfig: NATSConfig{
			URL:           "nats://localhost:4222",
			Stream:        "LEDGER_EVENTS",
			SubjectPrefix: "bitget.ledger.events",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: true,
		},
		PersistenceConfig: PersistenceConfig{
			Path: "data/ledger.json",
		},
	}
}

// Load reads .env, then config.yaml or config.json, then environment overrides
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	path := getEnvOrDefault("CONFIG_FILE", "")
	if path == "" {
		for _, candidate := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return LoadFrom(path)
}

// LoadFrom loads defaults, overlays the given file (if any) and applies
// environment overrides
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Exchange config
	ex := &cfg.ExchangeConfig
	ex.BaseURL = getEnvOrDefault("BITGET_BASE_URL", ex.BaseURL)
	ex.APIKey = getEnvOrDefault("BITGET_API_KEY", ex.APIKey)
	ex.SecretKey = getEnvOrDefault("BITGET_SECRET_KEY", ex.SecretKey)
	ex.Passphrase = getEnvOrDefault("BITGET_PASSPHRASE", ex.Passphrase)
	ex.Symbol = getEnvOrDefault("SYMBOL", ex.Symbol)
	ex.Leverage = getEnvIntOrDefault("LEVERAGE", ex.Leverage)
	ex.MarginMode = getEnvOrDefault("MARGIN_MODE", ex.MarginMode)
	ex.DryRun = getEnvBoolOrDefault("DRY_RUN", ex.DryRun)
	ex.PaperPrice = getEnvFloatOrDefault("PAPER_PRICE", ex.PaperPrice)
	ex.RequestsPerSecond = getEnvFloatOrDefault("BITGET_REQUESTS_PER_SECOND", ex.RequestsPerSecond)
	ex.MaxRetries = getEnvIntOrDefault("EXCHANGE_MAX_RETRIES", ex.MaxRetries)
	ex.AttemptTimeout = getEnvDurationOrDefault("EXCHANGE_ATTEMPT_TIMEOUT", ex.AttemptTimeout)

	// Trading config
	tr := &cfg.TradingConfig
	tr.InitialBalance = getEnvFloatOrDefault("INITIAL_BALANCE", tr.InitialBalance)
	tr.TakeProfitPct = getEnvFloatOrDefault("TAKE_PROFIT_PCT", tr.TakeProfitPct)
	tr.StopLossPct = getEnvFloatOrDefault("STOP_LOSS_PCT", tr.StopLossPct)
	tr.Timezone = getEnvOrDefault("TRADING_TIMEZONE", tr.Timezone)
	tr.SizingMode = getEnvOrDefault("SIZING_MODE", tr.SizingMode)
	tr.RiskPercent = getEnvFloatOrDefault("RISK_PERCENT", tr.RiskPercent)
	tr.SafetyBuffer = getEnvFloatOrDefault("SAFETY_BUFFER", tr.SafetyBuffer)
	tr.QuantityPrecision = getEnvIntOrDefault("QUANTITY_PRECISION", tr.QuantityPrecision)
	tr.MinQuantity = getEnvFloatOrDefault("MIN_QUANTITY", tr.MinQuantity)
	tr.MinSignalInterval = getEnvDurationOrDefault("MIN_SIGNAL_INTERVAL", tr.MinSignalInterval)

	// Monitor and sync
	cfg.MonitorConfig.Interval = getEnvDurationOrDefault("MONITOR_INTERVAL", cfg.MonitorConfig.Interval)
	cfg.MonitorConfig.MaxPriceFailures = getEnvIntOrDefault("MONITOR_MAX_PRICE_FAILURES", cfg.MonitorConfig.MaxPriceFailures)
	cfg.SyncConfig.Enabled = getEnvBoolOrDefault("SYNC_ENABLED", cfg.SyncConfig.Enabled)
	cfg.SyncConfig.Interval = getEnvDurationOrDefault("SYNC_INTERVAL", cfg.SyncConfig.Interval)

	// Phase config
	cfg.PhaseConfig.ExtractionThreshold = getEnvFloatOrDefault("PHASE_EXTRACTION_THRESHOLD", cfg.PhaseConfig.ExtractionThreshold)
	cfg.PhaseConfig.ResetMultiple = getEnvFloatOrDefault("PHASE_RESET_MULTIPLE", cfg.PhaseConfig.ResetMultiple)
	cfg.PhaseConfig.GrowthReinvest = getEnvFloatOrDefault("PHASE_GROWTH_REINVEST", cfg.PhaseConfig.GrowthReinvest)
	cfg.PhaseConfig.ExtractionReinvest = getEnvFloatOrDefault("PHASE_EXTRACTION_REINVEST", cfg.PhaseConfig.ExtractionReinvest)

	// Circuit breaker config
	cb := &cfg.CircuitBreakerConfig
	cb.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cb.Enabled)
	cb.MaxDailyLossPct = getEnvFloatOrDefault("CIRCUIT_MAX_DAILY_LOSS_PCT", cb.MaxDailyLossPct)
	cb.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cb.MaxConsecutiveLosses)
	cb.MinBalanceFraction = getEnvFloatOrDefault("CIRCUIT_MIN_BALANCE_FRACTION", cb.MinBalanceFraction)
	cb.EmergencyDrawdownPct = getEnvFloatOrDefault("CIRCUIT_EMERGENCY_DRAWDOWN_PCT", cb.EmergencyDrawdownPct)

	// Webhook
	cfg.WebhookConfig.Secret = getEnvOrDefault("WEBHOOK_SECRET", cfg.WebhookConfig.Secret)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.ServerConfig.ReadTimeout)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.ServerConfig.WriteTimeout)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", cfg.AuthConfig.AdminUser)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)

	// NATS config
	cfg.NATSConfig.Enabled = getEnvBoolOrDefault("NATS_ENABLED", cfg.NATSConfig.Enabled)
	cfg.NATSConfig.URL = getEnvOrDefault("NATS_URL", cfg.NATSConfig.URL)
	cfg.NATSConfig.Stream = getEnvOrDefault("NATS_STREAM", cfg.NATSConfig.Stream)
	cfg.NATSConfig.SubjectPrefix = getEnvOrDefault("NATS_SUBJECT_PREFIX", cfg.NATSConfig.SubjectPrefix)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Persistence config
	cfg.PersistenceConfig.Path = getEnvOrDefault("STATE_FILE", cfg.PersistenceConfig.Path)
	cfg.PersistenceConfig.MirrorToRedis = getEnvBoolOrDefault("STATE_MIRROR_REDIS", cfg.PersistenceConfig.MirrorToRedis)
}

// Validate rejects settings the bot cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.ExchangeConfig.Symbol == "" {
		errs = append(errs, errors.New("exchange.symbol is required"))
	}
	if c.ExchangeConfig.Leverage < 1 || c.ExchangeConfig.Leverage > 125 {
		errs = append(errs, fmt.Errorf("exchange.leverage %d out of range 1-125", c.ExchangeConfig.Leverage))
	}
	switch c.ExchangeConfig.MarginMode {
	case "fixed", "crossed":
	default:
		errs = append(errs, fmt.Errorf("exchange.margin_mode %q must be fixed or crossed", c.ExchangeConfig.MarginMode))
	}
	if !c.ExchangeConfig.DryRun && (c.ExchangeConfig.APIKey == "" || c.ExchangeConfig.SecretKey == "" || c.ExchangeConfig.Passphrase == "") && !c.VaultConfig.Enabled {
		errs = append(errs, errors.New("live trading needs Bitget credentials or vault"))
	}

	tr := c.TradingConfig
	if tr.InitialBalance <= 0 {
		errs = append(errs, errors.New("trading.initial_balance must be positive"))
	}
	if tr.TakeProfitPct <= 0 || tr.StopLossPct <= 0 {
		errs = append(errs, errors.New("trading.take_profit_pct and trading.stop_loss_pct must be positive"))
	}
	if tr.StopLossPct >= 100 {
		errs = append(errs, errors.New("trading.stop_loss_pct must be below 100"))
	}
	if _, err := time.LoadLocation(tr.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("trading.timezone: %w", err))
	}
	switch tr.SizingMode {
	case "balance", "signal":
	default:
		errs = append(errs, fmt.Errorf("trading.sizing_mode %q must be balance or signal", tr.SizingMode))
	}
	if tr.QuantityPrecision < 0 || tr.MinQuantity < 0 {
		errs = append(errs, errors.New("trading.quantity_precision and trading.min_quantity must not be negative"))
	}

	if c.MonitorConfig.Interval <= 0 || c.SyncConfig.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval and sync.interval must be positive"))
	}
	if c.PhaseConfig.ResetMultiple <= 0 {
		errs = append(errs, errors.New("phase.reset_multiple must be positive"))
	}
	for name, v := range map[string]float64{
		"phase.growth_reinvest":     c.PhaseConfig.GrowthReinvest,
		"phase.extraction_reinvest": c.PhaseConfig.ExtractionReinvest,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.4f must be within 0-1", name, v))
		}
	}

	if c.WebhookConfig.Secret == "" {
		errs = append(errs, errors.New("webhook.secret is required"))
	}
	if c.AuthConfig.Enabled && len(c.AuthConfig.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}
	if c.DatabaseConfig.Enabled && c.DatabaseConfig.URL == "" {
		errs = append(errs, errors.New("database.url is required when the journal is enabled"))
	}
	if c.PersistenceConfig.Path == "" {
		errs = append(errs, errors.New("persistence.path is required"))
	}
	return errors.Join(errs...)
}

// Location returns the trading day time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TradingConfig.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, cfg)
	default:
		err = json.Unmarshal(file, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	cfg := DefaultConfig()
	cfg.ExchangeConfig.APIKey = "your_api_key_here"
	cfg.ExchangeConfig.SecretKey = "your_secret_key_here"
	cfg.ExchangeConfig.Passphrase = "your_passphrase_here"
	cfg.WebhookConfig.Secret = "change-me"
	cfg.AuthConfig.JWTSecret = "change-me-to-a-random-32-byte-string"

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
