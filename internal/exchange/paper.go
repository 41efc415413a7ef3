package exchange

import (
	"context"
	"fmt"
	"sync"

	"bitget-webhook-bot/internal/ledger"

	"github.com/shopspring/decimal"
)

// PriceProvider supplies prices to the paper gateway
type PriceProvider func(ctx context.Context, symbol string) (decimal.Decimal, error)

// PaperGateway simulates a one-way futures account for dry-run mode.
// Prices come from the provider when set, otherwise from SetPrice.
type PaperGateway struct {
	mu            sync.Mutex
	positions     map[string]*Position
	orders        []OrderRequest
	price         decimal.Decimal
	priceErr      error
	orderErr      error
	positionErr   error
	closeAllCalls int
	nextOrderID   int64
	priceProvider PriceProvider
}

// NewPaperGateway creates a paper gateway
func NewPaperGateway(priceProvider PriceProvider) *PaperGateway {
	return &PaperGateway{
		positions:     make(map[string]*Position),
		nextOrderID:   1000,
		priceProvider: priceProvider,
	}
}

// SetPrice sets the price used when no provider is configured
func (p *PaperGateway) SetPrice(price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
	p.priceErr = nil
}

// SetPriceError makes price lookups fail with err until SetPrice is called
func (p *PaperGateway) SetPriceError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priceErr = err
}

// SetOrderError makes order placement fail with err; nil clears it
func (p *PaperGateway) SetOrderError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderErr = err
}

// SetPositionError makes position queries fail with err; nil clears it
func (p *PaperGateway) SetPositionError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionErr = err
}

// SetPosition replaces the simulated exchange position; nil makes it flat
func (p *PaperGateway) SetPosition(symbol string, pos *Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos == nil {
		delete(p.positions, symbol)
		return
	}
	cp := *pos
	p.positions[symbol] = &cp
}

// Orders returns every accepted order
func (p *PaperGateway) Orders() []OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]OrderRequest(nil), p.orders...)
}

// CloseAllCalls returns how many times CloseAllPositions was called
func (p *PaperGateway) CloseAllCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeAllCalls
}

func (p *PaperGateway) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	provider, price, priceErr := p.priceProvider, p.price, p.priceErr
	p.mu.Unlock()

	if priceErr != nil {
		return decimal.Zero, priceErr
	}
	if provider != nil {
		return provider(ctx, symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

func (p *PaperGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive size %s", ErrOrderRejected, req.Quantity)
	}
	price, err := p.GetCurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.orderErr != nil {
		return nil, p.orderErr
	}

	pos := p.positions[req.Symbol]
	switch req.Action {
	case ActionOpen:
		switch {
		case pos == nil:
			p.positions[req.Symbol] = &Position{Side: req.Side, Quantity: req.Quantity, EntryPrice: price}
		case pos.Side == req.Side:
			total := pos.Quantity.Add(req.Quantity)
			pos.EntryPrice = pos.EntryPrice.Mul(pos.Quantity).Add(price.Mul(req.Quantity)).Div(total)
			pos.Quantity = total
		default:
			return nil, fmt.Errorf("%w: %s position open, cannot open %s", ErrOrderRejected, pos.Side, req.Side)
		}
	case ActionClose:
		if pos == nil || pos.Side != req.Side {
			return nil, fmt.Errorf("%w: no %s position to close", ErrOrderRejected, req.Side)
		}
		if req.Quantity.GreaterThanOrEqual(pos.Quantity) {
			delete(p.positions, req.Symbol)
		} else {
			pos.Quantity = pos.Quantity.Sub(req.Quantity)
		}
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrOrderRejected, req.Action)
	}

	p.orders = append(p.orders, req)
	p.nextOrderID++
	return &OrderResult{OrderID: fmt.Sprintf("paper-%d", p.nextOrderID), ClientOID: req.ClientOID}, nil
}

func (p *PaperGateway) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.positionErr != nil {
		return nil, p.positionErr
	}
	pos, ok := p.positions[symbol]
	if !ok {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

func (p *PaperGateway) CloseAllPositions(ctx context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeAllCalls++
	if p.orderErr != nil {
		return p.orderErr
	}
	if pos, ok := p.positions[symbol]; ok {
		p.orders = append(p.orders, OrderRequest{
			Symbol:   symbol,
			Side:     pos.Side,
			Action:   ActionClose,
			Quantity: pos.Quantity,
		})
		delete(p.positions, symbol)
	}
	return nil
}

// Prepare is a no-op for paper trading
func (p *PaperGateway) Prepare(ctx context.Context, symbol string, leverage int, marginMode string) error {
	return nil
}

var _ Gateway = (*PaperGateway)(nil)
var _ Gateway = (*BitgetClient)(nil)
var _ Gateway = (*RetryGateway)(nil)
var _ ledger.Liquidator = (*RetryGateway)(nil)
