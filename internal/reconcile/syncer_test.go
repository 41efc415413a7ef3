package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitget-webhook-bot/internal/circuit"
	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"

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

type watchRecorder struct {
	mu      sync.Mutex
	watched []ledger.Position
}

func (w *watchRecorder) Watch(p ledger.Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, p)
}

type rig struct {
	ledger  *ledger.Ledger
	gw      *exchange.PaperGateway
	watcher *watchRecorder
	syncer  *Syncer
	actions []string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	bus := events.NewSyncEventBus()
	r := &rig{
		gw:      exchange.NewPaperGateway(nil),
		watcher: &watchRecorder{},
	}
	bus.Subscribe(events.EventSyncAction, func(e events.Event) {
		r.actions = append(r.actions, e.Data["action"].(string))
	})
	r.ledger = ledger.New(ledger.Config{
		Symbol:         testSymbol,
		InitialBalance: d("20"),
		TakeProfitPct:  d("1.3"),
		StopLossPct:    d("0.75"),
		Phase:          ledger.DefaultPhaseConfig(),
	}, &memStore{}, circuit.NewCircuitBreaker(nil), bus, zerolog.Nop())
	r.ledger.SetWatcher(r.watcher)
	r.syncer = NewSyncer(r.ledger, r.gw, DefaultConfig(), bus, zerolog.Nop())
	return r
}

func TestSyncExternalClose(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
	r.gw.SetPrice(d("100.5"))

	if got := r.syncer.SyncOnce(ctx); got != ActionExternalClose {
		t.Fatalf("Expected %s, got %s", ActionExternalClose, got)
	}
	if _, ok := r.ledger.Position(); ok {
		t.Fatal("Expected ledger to be flat")
	}

	acct := r.ledger.Account()
	rec := acct.TradeHistory[0]
	if rec.Reason != ledger.ReasonExternalClose {
		t.Errorf("Expected reason %s, got %s", ledger.ReasonExternalClose, rec.Reason)
	}
	if !rec.ExitPrice.Equal(d("100.5")) {
		t.Errorf("Expected exit 100.5, got %s", rec.ExitPrice)
	}
	if !acct.CurrentBalance.Equal(d("20.33")) {
		t.Errorf("Expected balance 20.33, got %s", acct.CurrentBalance)
	}
	if acct.LastSyncAt == nil {
		t.Error("Expected LastSyncAt to be set")
	}
	if len(r.actions) != 1 || r.actions[0] != string(ActionExternalClose) {
		t.Errorf("Expected one external_close event, got %v", r.actions)
	}
}

func TestSyncRecoversUntrackedPosition(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.gw.SetPrice(d("88"))
	r.gw.SetPosition(testSymbol, &exchange.Position{Side: ledger.SideShort, Quantity: d("1.5"), EntryPrice: d("90")})

	if got := r.syncer.SyncOnce(ctx); got != ActionRecovered {
		t.Fatalf("Expected %s, got %s", ActionRecovered, got)
	}

	pos, ok := r.ledger.Position()
	if !ok {
		t.Fatal("Expected a recovered position")
	}
	if pos.Side != ledger.SideShort || !pos.Quantity.Equal(d("1.5")) {
		t.Errorf("Expected short 1.5, got %s %s", pos.Side, pos.Quantity)
	}
	if !pos.EntryPrice.Equal(d("88")) {
		t.Errorf("Expected entry at current price 88, got %s", pos.EntryPrice)
	}
	if pos.Source != ledger.SourceRecovered {
		t.Errorf("Expected source recovered, got %s", pos.Source)
	}
	if len(r.watcher.watched) != 1 {
		t.Errorf("Expected a monitor to be started, got %d", len(r.watcher.watched))
	}
}

func TestSyncSideMismatch(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
	r.gw.SetPrice(d("99"))
	r.gw.SetPosition(testSymbol, &exchange.Position{Side: ledger.SideShort, Quantity: d("0.5")})

	if got := r.syncer.SyncOnce(ctx); got != ActionSideMismatch {
		t.Fatalf("Expected %s, got %s", ActionSideMismatch, got)
	}

	acct := r.ledger.Account()
	if acct.TotalTrades != 1 || acct.TradeHistory[0].Reason != ledger.ReasonSideMismatch {
		t.Errorf("Expected one side_mismatch close, got %+v", acct.TradeHistory)
	}
	pos, ok := r.ledger.Position()
	if !ok || pos.Side != ledger.SideShort {
		t.Fatalf("Expected adopted short position, got %+v (ok=%v)", pos, ok)
	}
	if len(r.watcher.watched) != 2 {
		t.Errorf("Expected 2 monitors started, got %d", len(r.watcher.watched))
	}
}

func TestSyncInAgreement(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
	r.gw.SetPosition(testSymbol, &exchange.Position{Side: ledger.SideLong, Quantity: d("0.66")})

	if got := r.syncer.SyncOnce(ctx); got != ActionInSync {
		t.Fatalf("Expected %s, got %s", ActionInSync, got)
	}
	if r.ledger.Account().LastSyncAt == nil {
		t.Error("Expected LastSyncAt to be set")
	}
	if len(r.actions) != 0 {
		t.Errorf("Expected no sync events, got %v", r.actions)
	}
}

func TestSyncBothFlat(t *testing.T) {
	r := newRig(t)
	if got := r.syncer.SyncOnce(context.Background()); got != ActionNone {
		t.Errorf("Expected %s, got %s", ActionNone, got)
	}
}

func TestSyncSkipsOnErrors(t *testing.T) {
	t.Run("position query fails", func(t *testing.T) {
		r := newRig(t)
		ctx := context.Background()
		r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
		r.gw.SetPositionError(errors.New("timeout"))

		if got := r.syncer.SyncOnce(ctx); got != ActionSkipped {
			t.Errorf("Expected %s, got %s", ActionSkipped, got)
		}
		if _, ok := r.ledger.Position(); !ok {
			t.Error("Expected position to be kept when the exchange is unreachable")
		}
	})

	t.Run("price unavailable", func(t *testing.T) {
		r := newRig(t)
		ctx := context.Background()
		r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
		r.gw.SetPriceError(exchange.ErrNoPrice)

		if got := r.syncer.SyncOnce(ctx); got != ActionSkipped {
			t.Errorf("Expected %s, got %s", ActionSkipped, got)
		}
		if _, ok := r.ledger.Position(); !ok {
			t.Error("Expected position to be kept without a price")
		}
		if r.ledger.Account().LastSyncAt != nil {
			t.Error("Expected LastSyncAt to stay unset on a skipped pass")
		}
	})
}

func TestSyncLeavesExitingPositionToMonitor(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.ledger.Open(ctx, ledger.SideLong, d("100"), d("0.66"))
	pos, _ := r.ledger.Position()
	r.gw.SetPrice(d("101.5"))

	if !r.ledger.BeginExit(pos.ID) {
		t.Fatal("Expected exit mark on the open position")
	}
	if got := r.syncer.SyncOnce(ctx); got != ActionSkipped {
		t.Fatalf("Expected %s, got %s", ActionSkipped, got)
	}
	if !r.ledger.Holds(pos.ID) {
		t.Fatal("Expected position kept while its exit is in flight")
	}
	if len(r.actions) != 0 {
		t.Errorf("Expected no sync events, got %v", r.actions)
	}

	r.ledger.EndExit(pos.ID)
	if got := r.syncer.SyncOnce(ctx); got != ActionExternalClose {
		t.Errorf("Expected %s once the exit mark is cleared, got %s", ActionExternalClose, got)
	}
}

func TestSyncerRunStopsOnCancel(t *testing.T) {
	r := newRig(t)
	r.syncer.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.syncer.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Syncer did not stop after cancellation")
	}
	if r.ledger.Account().LastSyncAt == nil {
		t.Error("Expected at least one sync pass")
	}
}
