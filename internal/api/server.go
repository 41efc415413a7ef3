package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"bitget-webhook-bot/internal/auth"
	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/logging"
	"bitget-webhook-bot/internal/metrics"
	"bitget-webhook-bot/internal/signal"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// LedgerAPI is what the HTTP surface needs from the ledger
type LedgerAPI interface {
	Symbol() string
	Snapshot() ledger.Status
	Resume(ctx context.Context) error
	Reset(ctx context.Context) error
}

// SignalHandler executes webhook signals
type SignalHandler interface {
	Handle(ctx context.Context, sig signal.Signal) (*signal.Result, error)
}

// TradeHistory serves closed trades from the journal
type TradeHistory interface {
	RecentTrades(ctx context.Context, symbol string, limit int) ([]ledger.TradeRecord, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool

	WebhookSecret string
	Leverage      int
	MarginMode    string
	DryRun        bool
}

// Deps are the collaborators the server routes to. AuthService, Trades and
// Registry may be nil.
type Deps struct {
	Ledger      LedgerAPI
	Signals     SignalHandler
	Gateway     exchange.Gateway
	AuthService *auth.Service
	Trades      TradeHistory
	Metrics     *metrics.Metrics
	Registry    prometheus.Gatherer
	EventBus    *events.EventBus
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	deps        Deps
	hub         *WSHub
	rateLimiter *RateLimiter // login attempts per client IP
	logger      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Webhook-Secret", "X-Trace-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      config,
		deps:        deps,
		hub:         NewWSHub(config.AllowedOrigins, logger),
		rateLimiter: NewRateLimiter(10, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}
	if deps.EventBus != nil {
		s.hub.Attach(deps.EventBus)
	}

	s.setupRoutes()
	return s
}

// ParseOrigins splits a comma separated origin list
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	s.router.POST("/webhook", s.handleWebhook)
	s.router.GET("/ws", s.handleWebSocket)

	if s.deps.Registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	api.GET("/trades", s.handleTrades)

	if s.deps.AuthService == nil {
		s.logger.Warn().Msg("Operator auth disabled, resume and reset routes are not mounted")
		return
	}

	authHandlers := auth.NewHandlers(s.deps.AuthService)
	api.POST("/auth/token", s.loginRateLimit(), authHandlers.Login)

	admin := api.Group("")
	admin.Use(auth.Middleware(s.deps.AuthService.GetJWTManager()), auth.RequireAdmin())
	admin.POST("/resume", s.handleResume)
	admin.POST("/reset", s.handleReset)
}

// loginRateLimit throttles token requests per client IP
func (s *Server) loginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many login attempts, try again later",
			})
			return
		}
		c.Next()
	}
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
