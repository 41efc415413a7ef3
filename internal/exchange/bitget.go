package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bitget-webhook-bot/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	// BitgetBaseURL is the production REST endpoint
	BitgetBaseURL = "https://api.bitget.com"

	bitgetSuccessCode = "00000"
	marginCoin        = "USDT"

	pathTicker        = "/api/mix/v1/market/ticker"
	pathPlaceOrder    = "/api/mix/v1/order/placeOrder"
	pathPosition      = "/api/mix/v1/position/singlePosition"
	pathSetLeverage   = "/api/mix/v1/account/setLeverage"
	pathSetMarginMode = "/api/mix/v1/account/setMarginMode"
)

// APIError is a non-success response from Bitget
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitget API error (http %d, code %s): %s", e.HTTPStatus, e.Code, e.Message)
}

// Temporary reports whether the request may succeed when retried
func (e *APIError) Temporary() bool {
	if e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500 {
		return true
	}
	// 429 is also reported in-body as code 429 on some endpoints
	return e.Code == "429" || e.Code == "40010"
}

// Credentials are the Bitget API key triple
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Complete reports whether all three fields are set
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// BitgetClient talks to the Bitget USDT-M futures v1 REST API
type BitgetClient struct {
	creds      Credentials
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
	now        func() time.Time
}

// NewBitgetClient creates a client. Public endpoints work without credentials.
func NewBitgetClient(creds Credentials, baseURL string, requestsPerSecond float64, logger zerolog.Logger) *BitgetClient {
	if baseURL == "" {
		baseURL = BitgetBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &BitgetClient{
		creds: Credentials{
			APIKey:     strings.TrimSpace(creds.APIKey),
			SecretKey:  strings.TrimSpace(creds.SecretKey),
			Passphrase: strings.TrimSpace(creds.Passphrase),
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:     logger.With().Str("component", "bitget").Logger(),
		now:        time.Now,
	}
}

// GetCurrentPrice returns the last traded price
func (c *BitgetClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker struct {
		Symbol string `json:"symbol"`
		Last   string `json:"last"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.do(ctx, http.MethodGet, pathTicker, q, nil, false, &ticker); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(ticker.Last)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bad ticker last %q", ErrNoPrice, ticker.Last)
	}
	return price, nil
}

// PlaceOrder submits a market order
func (c *BitgetClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive size %s", ErrOrderRejected, req.Quantity)
	}
	if req.ClientOID == "" {
		req.ClientOID = uuid.NewString()
	}
	body := map[string]string{
		"symbol":           req.Symbol,
		"marginCoin":       marginCoin,
		"side":             req.TradeSide(),
		"orderType":        "market",
		"size":             req.Quantity.String(),
		"timeInForceValue": "normal",
		"clientOid":        req.ClientOID,
	}

	var resp struct {
		OrderID   string `json:"orderId"`
		ClientOID string `json:"clientOid"`
	}
	if err := c.do(ctx, http.MethodPost, pathPlaceOrder, nil, body, true, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("symbol", req.Symbol).
		Str("side", req.TradeSide()).
		Str("size", req.Quantity.String()).
		Str("order_id", resp.OrderID).
		Msg("Order placed")
	return &OrderResult{OrderID: resp.OrderID, ClientOID: resp.ClientOID}, nil
}

type bitgetPosition struct {
	HoldSide         string `json:"holdSide"`
	Total            string `json:"total"`
	AverageOpenPrice string `json:"averageOpenPrice"`
}

func (c *BitgetClient) positions(ctx context.Context, symbol string) ([]Position, error) {
	var raw []bitgetPosition
	q := url.Values{"symbol": {symbol}, "marginCoin": {marginCoin}}
	if err := c.do(ctx, http.MethodGet, pathPosition, q, nil, true, &raw); err != nil {
		return nil, err
	}

	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		total, err := decimal.NewFromString(p.Total)
		if err != nil || !total.IsPositive() {
			continue
		}
		side, err := ledger.ParseSide(p.HoldSide)
		if err != nil {
			continue
		}
		entry, _ := decimal.NewFromString(p.AverageOpenPrice)
		out = append(out, Position{Side: side, Quantity: total, EntryPrice: entry})
	}
	return out, nil
}

// GetOpenPosition returns the open position, or nil when flat. In hedge mode
// with both sides open the larger one is reported.
func (c *BitgetClient) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	all, err := c.positions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var best *Position
	for i := range all {
		if best == nil || all[i].Quantity.GreaterThan(best.Quantity) {
			best = &all[i]
		}
	}
	if len(all) > 1 {
		c.logger.Warn().Int("count", len(all)).Msg("Both sides open on exchange, reporting the larger")
	}
	return best, nil
}

// CloseAllPositions market-closes every open side
func (c *BitgetClient) CloseAllPositions(ctx context.Context, symbol string) error {
	all, err := c.positions(ctx, symbol)
	if err != nil {
		return err
	}
	for _, p := range all {
		_, err := c.PlaceOrder(ctx, OrderRequest{
			Symbol:   symbol,
			Side:     p.Side,
			Action:   ActionClose,
			Quantity: p.Quantity,
		})
		if err != nil {
			return fmt.Errorf("close %s %s: %w", p.Side, p.Quantity, err)
		}
	}
	return nil
}

// Prepare sets leverage for both hold sides and the margin mode
func (c *BitgetClient) Prepare(ctx context.Context, symbol string, leverage int, marginMode string) error {
	for _, side := range []string{"long", "short"} {
		body := map[string]string{
			"symbol":     symbol,
			"marginCoin": marginCoin,
			"leverage":   strconv.Itoa(leverage),
			"holdSide":   side,
		}
		if err := c.do(ctx, http.MethodPost, pathSetLeverage, nil, body, true, nil); err != nil {
			return fmt.Errorf("set %s leverage: %w", side, err)
		}
	}
	if marginMode != "" {
		body := map[string]string{
			"symbol":     symbol,
			"marginCoin": marginCoin,
			"marginMode": marginMode,
		}
		if err := c.do(ctx, http.MethodPost, pathSetMarginMode, nil, body, true, nil); err != nil {
			return fmt.Errorf("set margin mode: %w", err)
		}
	}
	c.logger.Info().Str("symbol", symbol).Int("leverage", leverage).Str("margin_mode", marginMode).Msg("Account prepared")
	return nil
}

// Sign computes the ACCESS-SIGN header: base64(HMAC-SHA256(timestamp+method+path+body))
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *BitgetClient) do(ctx context.Context, method, path string, query url.Values, body interface{}, signed bool, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	requestPath := path
	if len(query) > 0 {
		requestPath = path + "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	if signed {
		if !c.creds.Complete() {
			return &APIError{HTTPStatus: http.StatusUnauthorized, Code: "missing_credentials", Message: "bitget credentials not configured"}
		}
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("ACCESS-SIGN", Sign(c.creds.SecretKey, ts, method, requestPath, string(bodyBytes)))
		req.Header.Set("ACCESS-TIMESTAMP", ts)
		req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{HTTPStatus: resp.StatusCode, Code: "decode", Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode != http.StatusOK || env.Code != bitgetSuccessCode {
		return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
