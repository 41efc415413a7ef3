package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitget-webhook-bot/internal/auth"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/logging"
	"bitget-webhook-bot/internal/signal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WebhookRequest is the TradingView alert payload
type WebhookRequest struct {
	Secret   string          `json:"secret"`
	Action   string          `json:"action"`
	Qty      decimal.Decimal `json:"qty"`
	Leverage json.Number     `json:"leverage,omitempty"`
}

// handleHealth returns static bot information
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "running",
		"exchange":          "Bitget",
		"symbol":            s.deps.Ledger.Symbol(),
		"leverage":          s.config.Leverage,
		"margin_mode":       s.config.MarginMode,
		"dry_run":           s.config.DryRun,
		"websocket_clients": s.hub.GetClientCount(),
		"timestamp":         time.Now().UTC(),
	})
}

// handleStatus returns the ledger view with the live exchange state
func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	symbol := s.deps.Ledger.Symbol()
	resp := gin.H{
		"symbol":    symbol,
		"ledger":    s.deps.Ledger.Snapshot(),
		"timestamp": time.Now().UTC(),
	}

	if price, err := s.deps.Gateway.GetCurrentPrice(ctx, symbol); err != nil {
		resp["price_error"] = err.Error()
	} else {
		resp["price"] = price
	}

	if pos, err := s.deps.Gateway.GetOpenPosition(ctx, symbol); err != nil {
		resp["exchange_position_error"] = err.Error()
	} else {
		resp["exchange_position"] = pos
	}

	c.JSON(http.StatusOK, resp)
}

// handleWebhook executes a trading signal
func (s *Server) handleWebhook(c *gin.Context) {
	log := logging.FromContext(c.Request.Context(), s.logger)

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload", "message": err.Error()})
		return
	}

	secret := req.Secret
	if secret == "" {
		secret = c.GetHeader("X-Webhook-Secret")
	}
	if !s.secretMatches(secret) {
		log.Warn().Str("remote_addr", c.ClientIP()).Msg("Webhook rejected, bad secret")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	action, err := signal.ParseAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := signal.Signal{Action: action, Quantity: req.Qty}
	if req.Leverage != "" {
		if lev, err := strconv.Atoi(req.Leverage.String()); err == nil {
			sig.Leverage = lev
		}
	}

	res, err := s.deps.Signals.Handle(c.Request.Context(), sig)
	if err != nil {
		c.JSON(signalStatus(err), gin.H{"error": err.Error(), "action": string(action)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "result": res})
}

func (s *Server) secretMatches(got string) bool {
	if s.config.WebhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.WebhookSecret)) == 1
}

// signalStatus maps handler errors to HTTP status codes
func signalStatus(err error) int {
	var apiErr *exchange.APIError
	switch {
	case errors.Is(err, signal.ErrInvalidSignal):
		return http.StatusBadRequest
	case errors.Is(err, signal.ErrDebounced):
		return http.StatusTooManyRequests
	case errors.Is(err, signal.ErrTradingHalted):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrNoPrice),
		errors.Is(err, exchange.ErrOrderRejected),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleResume clears an emergency stop
func (s *Server) handleResume(c *gin.Context) {
	if err := s.deps.Ledger.Resume(c.Request.Context()); err != nil {
		if errors.Is(err, ledger.ErrNotPaused) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	reqLog := logging.FromContext(c.Request.Context(), s.logger)
	reqLog.Warn().
		Str("operator", auth.GetUsername(c)).
		Msg("Trading resumed via API")
	c.JSON(http.StatusOK, gin.H{"status": "resumed", "ledger": s.deps.Ledger.Snapshot()})
}

// handleReset recreates the account at the current starting balance
func (s *Server) handleReset(c *gin.Context) {
	if err := s.deps.Ledger.Reset(c.Request.Context()); err != nil {
		if errors.Is(err, ledger.ErrPositionOpen) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "ledger": s.deps.Ledger.Snapshot()})
}

// handleTrades lists closed trades, newest first
func (s *Server) handleTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	if s.deps.Trades != nil {
		trades, err := s.deps.Trades.RecentTrades(c.Request.Context(), s.deps.Ledger.Symbol(), limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"source": "journal", "trades": trades})
			return
		}
		reqLog := logging.FromContext(c.Request.Context(), s.logger)
		reqLog.Warn().Err(err).Msg("Journal query failed, serving ledger history")
	}

	history := s.deps.Ledger.Snapshot().Account.TradeHistory
	trades := make([]ledger.TradeRecord, 0, limit)
	for i := len(history) - 1; i >= 0 && len(trades) < limit; i-- {
		trades = append(trades, history[i])
	}
	c.JSON(http.StatusOK, gin.H{"source": "ledger", "trades": trades})
}
