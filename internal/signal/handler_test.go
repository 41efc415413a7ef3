package signal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitget-webhook-bot/internal/circuit"
	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"
	"bitget-webhook-bot/internal/risk"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const testSymbol = "LTCUSDT_UMCBL"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memStore struct {
	mu    sync.Mutex
	saved *ledger.State
}

func (m *memStore) Save(ctx context.Context, st ledger.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &st
	return nil
}

func (m *memStore) Load(ctx context.Context) (*ledger.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

type rig struct {
	ledger   *ledger.Ledger
	gw       *exchange.PaperGateway
	handler  *Handler
	rejected atomic.Int32
	received atomic.Int32
}

func newRig(t *testing.T, sizing risk.SizingConfig, debounce time.Duration) *rig {
	t.Helper()
	bus := events.NewSyncEventBus()
	r := &rig{gw: exchange.NewPaperGateway(nil)}
	r.gw.SetPrice(d("100"))
	bus.Subscribe(events.EventSignalRejected, func(events.Event) { r.rejected.Add(1) })
	bus.Subscribe(events.EventSignalReceived, func(events.Event) { r.received.Add(1) })

	r.ledger = ledger.New(ledger.Config{
		Symbol:         testSymbol,
		InitialBalance: d("20"),
		TakeProfitPct:  d("1.3"),
		StopLossPct:    d("0.75"),
		Phase:          ledger.DefaultPhaseConfig(),
	}, &memStore{}, circuit.NewCircuitBreaker(nil), bus, zerolog.Nop())
	r.handler = NewHandler(r.ledger, r.gw, risk.NewSizer(sizing), NewLocalDebouncer(debounce), bus, zerolog.Nop())
	return r
}

func signalSizing() risk.SizingConfig {
	cfg := risk.DefaultSizingConfig()
	cfg.Mode = risk.SizingSignal
	return cfg
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"buy", ActionLong, false},
		{"LONG", ActionLong, false},
		{"Sell", ActionShort, false},
		{"short", ActionShort, false},
		{" close ", ActionClose, false},
		{"hold", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignal) {
					t.Errorf("Expected ErrInvalidSignal, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHandleOpensLongInSignalMode(t *testing.T) {
	r := newRig(t, signalSizing(), 0)

	res, err := r.handler.Handle(context.Background(), Signal{Action: ActionLong, Quantity: d("0.7")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Opened {
		t.Fatal("Expected a position to be opened")
	}
	if !res.Quantity.Equal(d("0.6")) {
		t.Errorf("Expected executed qty 0.6, got %s", res.Quantity)
	}

	pos, ok := r.ledger.Position()
	if !ok || pos.Side != ledger.SideLong || !pos.EntryPrice.Equal(d("100")) {
		t.Fatalf("Expected long at 100, got %+v", pos)
	}
	ex, _ := r.gw.GetOpenPosition(context.Background(), testSymbol)
	if ex == nil || !ex.Quantity.Equal(d("0.6")) {
		t.Errorf("Expected exchange long 0.6, got %+v", ex)
	}
	if n := r.received.Load(); n != 1 {
		t.Errorf("Expected 1 SIGNAL_RECEIVED event, got %d", n)
	}
}

func TestHandleBalanceSizing(t *testing.T) {
	r := newRig(t, risk.DefaultSizingConfig(), 0)

	res, err := r.handler.Handle(context.Background(), Signal{Action: ActionShort})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// 20 × 100% × 9 / 100
	if !res.Quantity.Equal(d("1.8")) {
		t.Errorf("Expected 1.8, got %s", res.Quantity)
	}
}

func TestHandleSameSideIsNoop(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	ctx := context.Background()

	first, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	if second.Opened || second.Skipped != "already_open" {
		t.Errorf("Expected already_open skip, got %+v", second)
	}
	if second.PositionID != first.PositionID {
		t.Errorf("Expected same position %s, got %s", first.PositionID, second.PositionID)
	}
	if len(r.gw.Orders()) != 1 {
		t.Errorf("Expected 1 order, got %d", len(r.gw.Orders()))
	}
}

func TestHandleFlip(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	ctx := context.Background()

	if _, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")}); err != nil {
		t.Fatal(err)
	}
	r.gw.SetPrice(d("101"))

	res, err := r.handler.Handle(ctx, Signal{Action: ActionShort, Quantity: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Closed || !res.ClosedPnL.Equal(d("0.9")) {
		t.Errorf("Expected flip close with pnl 0.9, got closed=%v pnl=%s", res.Closed, res.ClosedPnL)
	}
	if !res.Opened {
		t.Error("Expected short to be opened after the flip")
	}

	acct := r.ledger.Account()
	if acct.TradeHistory[0].Reason != ledger.ReasonSignalFlip {
		t.Errorf("Expected reason %s, got %s", ledger.ReasonSignalFlip, acct.TradeHistory[0].Reason)
	}
	pos, _ := r.ledger.Position()
	if pos.Side != ledger.SideShort {
		t.Errorf("Expected short position, got %s", pos.Side)
	}
	ex, _ := r.gw.GetOpenPosition(ctx, testSymbol)
	if ex == nil || ex.Side != ledger.SideShort {
		t.Errorf("Expected exchange short, got %+v", ex)
	}
}

func TestHandleClose(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	ctx := context.Background()

	res, err := r.handler.Handle(ctx, Signal{Action: ActionClose})
	if err != nil {
		t.Fatal(err)
	}
	if res.Closed || res.Skipped != "no_position" {
		t.Errorf("Expected no_position skip, got %+v", res)
	}

	if _, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")}); err != nil {
		t.Fatal(err)
	}
	r.gw.SetPrice(d("99"))
	res, err = r.handler.Handle(ctx, Signal{Action: ActionClose})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Closed || !res.ClosedPnL.Equal(d("-0.9")) {
		t.Errorf("Expected close with pnl -0.9, got closed=%v pnl=%s", res.Closed, res.ClosedPnL)
	}
	if _, ok := r.ledger.Position(); ok {
		t.Error("Expected ledger to be flat")
	}
	if r.ledger.Account().TradeHistory[0].Reason != ledger.ReasonSignalClose {
		t.Errorf("Expected reason %s", ledger.ReasonSignalClose)
	}
}

func TestHandleDebounce(t *testing.T) {
	r := newRig(t, signalSizing(), time.Hour)
	ctx := context.Background()

	if _, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")}); err != nil {
		t.Fatal(err)
	}
	_, err := r.handler.Handle(ctx, Signal{Action: ActionShort, Quantity: d("1")})
	if !errors.Is(err, ErrDebounced) {
		t.Fatalf("Expected ErrDebounced, got %v", err)
	}
	pos, _ := r.ledger.Position()
	if pos.Side != ledger.SideLong {
		t.Error("Expected debounced signal to leave the position untouched")
	}
	if n := r.rejected.Load(); n != 1 {
		t.Errorf("Expected 1 SIGNAL_REJECTED event, got %d", n)
	}
}

func TestHandleInvalidSignalKeepsDebounceToken(t *testing.T) {
	r := newRig(t, signalSizing(), time.Hour)
	ctx := context.Background()

	_, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("0")})
	if !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("Expected ErrInvalidSignal, got %v", err)
	}
	if _, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")}); err != nil {
		t.Errorf("Expected valid signal to pass after an invalid one, got %v", err)
	}
}

func TestHandlePriceFailureAborts(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	r.gw.SetPriceError(errors.New("ticker down"))

	_, err := r.handler.Handle(context.Background(), Signal{Action: ActionLong, Quantity: d("1")})
	if !errors.Is(err, exchange.ErrNoPrice) {
		t.Fatalf("Expected ErrNoPrice, got %v", err)
	}
	if _, ok := r.ledger.Position(); ok {
		t.Error("Expected no ledger mutation")
	}
	if len(r.gw.Orders()) != 0 {
		t.Error("Expected no orders")
	}
}

func TestHandleOrderFailureLeavesLedgerFlat(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	r.gw.SetOrderError(errors.New("insufficient margin"))

	_, err := r.handler.Handle(context.Background(), Signal{Action: ActionLong, Quantity: d("1")})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if _, ok := r.ledger.Position(); ok {
		t.Error("Expected no position after a failed order")
	}
}

func TestHandleTradingHalted(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	ctx := context.Background()

	// five straight losses trip the consecutive loss breaker
	for i := 0; i < 5; i++ {
		r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.1"))
		r.ledger.Close(ctx, d("99.9"), ledger.ReasonStopLoss)
	}

	_, err := r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")})
	if !errors.Is(err, ErrTradingHalted) {
		t.Fatalf("Expected ErrTradingHalted, got %v", err)
	}
	if len(r.gw.Orders()) != 0 {
		t.Errorf("Expected no orders, got %d", len(r.gw.Orders()))
	}
}

func TestHandleSerialisesConcurrentSignals(t *testing.T) {
	r := newRig(t, signalSizing(), 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.handler.Handle(ctx, Signal{Action: ActionLong, Quantity: d("1")})
		}()
	}
	wg.Wait()

	if n := len(r.gw.Orders()); n != 1 {
		t.Errorf("Expected exactly 1 open order, got %d", n)
	}
	if r.ledger.Account().TotalTrades != 0 {
		t.Error("Expected no closed trades")
	}
}
