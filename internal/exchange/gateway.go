// Package exchange adapts the broker API for the ledger: price lookup,
// market orders, and the authoritative position query.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"bitget-webhook-bot/internal/ledger"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPrice       = errors.New("exchange: price unavailable")
	ErrOrderRejected = errors.New("exchange: order rejected")
)

// OrderAction distinguishes opening from reducing orders
type OrderAction string

const (
	ActionOpen  OrderAction = "open"
	ActionClose OrderAction = "close"
)

// OrderRequest is a market order for one side of the instrument
type OrderRequest struct {
	Symbol    string
	Side      ledger.Side
	Action    OrderAction
	Quantity  decimal.Decimal
	ClientOID string // reused across retries so the broker can reject duplicates
}

// TradeSide returns the broker side string, e.g. open_long or close_short
func (r OrderRequest) TradeSide() string {
	return fmt.Sprintf("%s_%s", r.Action, r.Side)
}

// OrderResult is the broker acknowledgement
type OrderResult struct {
	OrderID   string `json:"order_id"`
	ClientOID string `json:"client_oid"`
}

// Position is the broker's view of the open position
type Position struct {
	Side       ledger.Side     `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// Gateway is the broker surface the trading core consumes
type Gateway interface {
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	// GetOpenPosition returns nil, nil when the account is flat
	GetOpenPosition(ctx context.Context, symbol string) (*Position, error)
	CloseAllPositions(ctx context.Context, symbol string) error
}

// Preparer configures account settings once at startup
type Preparer interface {
	Prepare(ctx context.Context, symbol string, leverage int, marginMode string) error
}
