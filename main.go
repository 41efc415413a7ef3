package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitget-webhook-bot/config"
	"bitget-webhook-bot/internal/api"
	"bitget-webhook-bot/internal/auth"
	"bitget-webhook-bot/internal/circuit"
	"bitget-webhook-bot/internal/database"
	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/logging"
	"bitget-webhook-bot/internal/metrics"
	"bitget-webhook-bot/internal/publisher"
	"bitget-webhook-bot/internal/reconcile"
	"bitget-webhook-bot/internal/risk"
	tradesignal "bitget-webhook-bot/internal/signal"
	"bitget-webhook-bot/internal/store"
	"bitget-webhook-bot/internal/vault"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logger, closer := logging.New(cfg.Logging("main"))
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Bot exited with error")
		closer.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Bot stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	symbol := cfg.ExchangeConfig.Symbol
	logger.Info().
		Str("symbol", symbol).
		Int("leverage", cfg.ExchangeConfig.Leverage).
		Bool("dry_run", cfg.ExchangeConfig.DryRun).
		Msg("Starting Bitget webhook bot")

	bus := events.NewEventBus()

	// Exchange gateway
	gateway, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	prepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = gateway.Prepare(prepCtx, symbol, cfg.ExchangeConfig.Leverage, cfg.ExchangeConfig.MarginMode)
	cancel()
	if err != nil {
		return fmt.Errorf("prepare %s: %w", symbol, err)
	}

	// Redis is shared by the snapshot mirror and the debouncer
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient, err = store.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without it")
		} else {
			defer redisClient.Close()
			logger.Info().Str("address", cfg.RedisConfig.Address).Msg("Redis connected")
		}
	}

	// Snapshot store
	fileStore, err := store.NewFileStore(cfg.PersistenceConfig.Path)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	var snapshots ledger.Store = fileStore
	if redisClient != nil && cfg.PersistenceConfig.MirrorToRedis {
		snapshots = store.NewMirrorStore(fileStore, store.NewRedisStore(redisClient, symbol, logger), logger)
	}

	// Ledger with its TP/SL supervisor
	breakerCfg := cfg.CircuitBreakerConfig
	breaker := circuit.NewCircuitBreaker(&breakerCfg)
	book := ledger.New(cfg.Ledger(), snapshots, breaker, bus, logger)

	supervisor := risk.NewSupervisor(gateway, book, cfg.Monitor(), bus, logger)
	book.SetWatcher(supervisor)
	book.SetLiquidator(gateway)

	if err := book.Load(ctx); err != nil {
		return err
	}

	// Signal path
	var debouncer tradesignal.Debouncer = tradesignal.NewLocalDebouncer(cfg.TradingConfig.MinSignalInterval)
	if redisClient != nil {
		debouncer = tradesignal.NewRedisDebouncer(redisClient, symbol, cfg.TradingConfig.MinSignalInterval, logger)
	}
	handler := tradesignal.NewHandler(book, gateway, risk.NewSizer(cfg.Sizing()), debouncer, bus, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)
	m.Attach(bus, book)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(gctx) })

	if cfg.SyncConfig.Enabled {
		syncer := reconcile.NewSyncer(book, gateway, cfg.Sync(), bus, logger)
		g.Go(func() error { return syncer.Run(gctx) })
	} else {
		logger.Warn().Msg("Reconciliation disabled")
	}

	// Trade journal
	var trades api.TradeHistory
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, database.Config{
			URL:      cfg.DatabaseConfig.URL,
			MaxConns: cfg.DatabaseConfig.MaxConns,
			MinConns: cfg.DatabaseConfig.MinConns,
		}, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		repo := database.NewRepository(db)
		journal := database.NewJournal(repo, symbol, 1024, logger)
		journal.Attach(bus)
		g.Go(func() error { return journal.Run(gctx) })
		trades = repo
	}

	// NATS fan-out
	if cfg.NATSConfig.Enabled {
		nc, js, err := publisher.Connect(cfg.NATSConfig.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		if err := publisher.EnsureStream(ctx, js, cfg.NATSConfig.Stream, cfg.NATSConfig.SubjectPrefix); err != nil {
			return err
		}
		pub := publisher.New(js, cfg.NATSConfig.SubjectPrefix, symbol, 1024, logger)
		pub.Attach(bus)
		g.Go(func() error { return pub.Run(gctx) })
	}

	// Operator auth
	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService, err = auth.NewService(auth.Config{
			JWTSecret:           cfg.AuthConfig.JWTSecret,
			AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration,
			AdminUser:           cfg.AuthConfig.AdminUser,
			AdminPasswordHash:   cfg.AuthConfig.AdminPasswordHash,
		}, logger)
		if err != nil {
			return err
		}
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: api.ParseOrigins(cfg.ServerConfig.AllowedOrigins),
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		ProductionMode: !cfg.ExchangeConfig.DryRun,
		WebhookSecret:  cfg.WebhookConfig.Secret,
		Leverage:       cfg.ExchangeConfig.Leverage,
		MarginMode:     cfg.ExchangeConfig.MarginMode,
		DryRun:         cfg.ExchangeConfig.DryRun,
	}, api.Deps{
		Ledger:      book,
		Signals:     handler,
		Gateway:     gateway,
		AuthService: authService,
		Trades:      trades,
		Metrics:     m,
		Registry:    registry,
		EventBus:    bus,
	}, logger)
	g.Go(func() error { return server.Run(gctx, cfg.ShutdownTimeout()) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Final snapshot after every writer has stopped
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelSave()
	if saveErr := snapshots.Save(saveCtx, book.State()); saveErr != nil {
		logger.Error().Err(saveErr).Msg("Failed to save final snapshot")
	}
	return err
}

// buildGateway returns the paper or live gateway wrapped with retries
func buildGateway(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*exchange.RetryGateway, error) {
	ex := cfg.ExchangeConfig

	if ex.DryRun {
		// Public ticker needs no credentials
		ticker := exchange.NewBitgetClient(exchange.Credentials{}, ex.BaseURL, ex.RequestsPerSecond, logger)
		var provider exchange.PriceProvider = ticker.GetCurrentPrice
		if ex.PaperPrice > 0 {
			provider = nil
		}
		paper := exchange.NewPaperGateway(provider)
		if ex.PaperPrice > 0 {
			paper.SetPrice(decimal.NewFromFloat(ex.PaperPrice))
		}
		logger.Warn().Bool("fixed_price", provider == nil).Msg("Dry run, orders are simulated")
		return exchange.NewRetryGateway(paper, cfg.Retry(), logger), nil
	}

	var vc *vault.Client
	if cfg.VaultConfig.Enabled {
		c, err := vault.NewClient(cfg.VaultConfig, logger)
		if err != nil {
			return nil, err
		}
		vc = c
	}
	creds, err := vault.ResolveCredentials(ctx, vc, exchange.Credentials{
		APIKey:     ex.APIKey,
		SecretKey:  ex.SecretKey,
		Passphrase: ex.Passphrase,
	})
	if err != nil {
		return nil, err
	}

	client := exchange.NewBitgetClient(creds, ex.BaseURL, ex.RequestsPerSecond, logger)
	return exchange.NewRetryGateway(client, cfg.Retry(), logger), nil
}
