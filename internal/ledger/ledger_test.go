package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bitget-webhook-bot/internal/circuit"
	"bitget-webhook-bot/internal/events"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore is an in-memory Store that records every save
type memStore struct {
	mu      sync.Mutex
	saved   *State
	saves   int
	saveErr error
}

func (m *memStore) Save(ctx context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := st
	m.saved = &cp
	return nil
}

func (m *memStore) Load(ctx context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved, nil
}

type recordingWatcher struct {
	mu      sync.Mutex
	watched []Position
}

func (w *recordingWatcher) Watch(p Position) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, p)
}

type countingLiquidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingLiquidator) CloseAllPositions(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

type testRig struct {
	ledger  *Ledger
	store   *memStore
	watcher *recordingWatcher
	liq     *countingLiquidator
	bus     *events.EventBus
	got     []events.Event
	clock   time.Time
}

func newRig(t *testing.T, balance string, cb *circuit.CircuitBreakerConfig) *testRig {
	t.Helper()
	r := &testRig{
		store:   &memStore{},
		watcher: &recordingWatcher{},
		liq:     &countingLiquidator{},
		bus:     events.NewSyncEventBus(),
		clock:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	r.bus.SubscribeAll(func(e events.Event) { r.got = append(r.got, e) })

	cfg := Config{
		Symbol:         "LTCUSDT_UMCBL",
		InitialBalance: d(balance),
		TakeProfitPct:  d("1.3"),
		StopLossPct:    d("0.75"),
		Phase:          DefaultPhaseConfig(),
	}
	r.ledger = New(cfg, r.store, circuit.NewCircuitBreaker(cb), r.bus, zerolog.Nop())
	r.ledger.SetWatcher(r.watcher)
	r.ledger.SetLiquidator(r.liq)
	r.ledger.SetClock(func() time.Time { return r.clock })
	return r
}

func (r *testRig) eventsOf(typ events.EventType) []events.Event {
	var out []events.Event
	for _, e := range r.got {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestOpenComputesExitLevels(t *testing.T) {
	tests := []struct {
		name   string
		side   Side
		wantTP string
		wantSL string
	}{
		{"long", SideLong, "101.3", "99.25"},
		{"short", SideShort, "98.7", "100.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, "20", nil)
			if !r.ledger.Open(context.Background(), tt.side, d("100"), d("0.66")) {
				t.Fatal("Expected open to succeed")
			}
			pos, ok := r.ledger.Position()
			if !ok {
				t.Fatal("Expected a position")
			}
			if !pos.TakeProfitPrice.Equal(d(tt.wantTP)) {
				t.Errorf("Expected TP %s, got %s", tt.wantTP, pos.TakeProfitPrice)
			}
			if !pos.StopLossPrice.Equal(d(tt.wantSL)) {
				t.Errorf("Expected SL %s, got %s", tt.wantSL, pos.StopLossPrice)
			}
			if len(r.watcher.watched) != 1 || r.watcher.watched[0].ID != pos.ID {
				t.Errorf("Expected watcher to receive the new position, got %v", r.watcher.watched)
			}
			if r.store.saved == nil || r.store.saved.Position == nil {
				t.Error("Expected open to persist the position")
			}
			if len(r.eventsOf(events.EventTradeOpened)) != 1 {
				t.Error("Expected one TRADE_OPENED event")
			}
		})
	}
}

func TestOpenWhileOpenIsNoop(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	if !r.ledger.Open(ctx, SideLong, d("100"), d("0.66")) {
		t.Fatal("Expected first open to succeed")
	}
	before := r.ledger.State()
	saves := r.store.saves

	for _, side := range []Side{SideLong, SideShort} {
		if r.ledger.Open(ctx, side, d("105"), d("1")) {
			t.Errorf("Expected open %s while open to return false", side)
		}
	}

	after := r.ledger.State()
	if after.Position.ID != before.Position.ID || !after.Position.EntryPrice.Equal(before.Position.EntryPrice) {
		t.Error("Expected position to be unchanged")
	}
	if r.store.saves != saves {
		t.Errorf("Expected no extra saves, got %d", r.store.saves-saves)
	}
	if len(r.watcher.watched) != 1 {
		t.Errorf("Expected watcher called once, got %d", len(r.watcher.watched))
	}
}

func TestOpenRejectsInvalidInput(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	cases := []struct {
		side  Side
		price string
		qty   string
	}{
		{SideLong, "0", "1"},
		{SideLong, "100", "0"},
		{SideShort, "-1", "1"},
		{Side("flat"), "100", "1"},
	}
	for _, c := range cases {
		if r.ledger.Open(ctx, c.side, d(c.price), d(c.qty)) {
			t.Errorf("Expected open(%s, %s, %s) to be rejected", c.side, c.price, c.qty)
		}
	}
	if _, ok := r.ledger.Position(); ok {
		t.Error("Expected no position after invalid opens")
	}
}

func TestCloseWhenFlatIsNoop(t *testing.T) {
	r := newRig(t, "20", nil)
	pnl := r.ledger.Close(context.Background(), d("100"), ReasonTakeProfit)
	if !pnl.IsZero() {
		t.Errorf("Expected 0 pnl, got %s", pnl)
	}
	if r.ledger.Account().TotalTrades != 0 {
		t.Error("Expected no trade recorded")
	}
}

func TestScenarioTakeProfit(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("0.66"))
	pnl := r.ledger.Close(ctx, d("101.3"), ReasonTakeProfit)

	if !pnl.Equal(d("0.858")) {
		t.Errorf("Expected pnl 0.858, got %s", pnl)
	}
	acct := r.ledger.Account()
	if !acct.CurrentBalance.Equal(d("20.858")) {
		t.Errorf("Expected balance 20.858, got %s", acct.CurrentBalance)
	}
	if acct.WinCount != 1 || acct.ConsecutiveLosses != 0 {
		t.Errorf("Expected 1 win and 0 consecutive losses, got %d/%d", acct.WinCount, acct.ConsecutiveLosses)
	}
	if !acct.PeakBalance.Equal(d("20.858")) {
		t.Errorf("Expected peak 20.858, got %s", acct.PeakBalance)
	}
	if len(acct.TradeHistory) != 1 || acct.TradeHistory[0].Reason != ReasonTakeProfit {
		t.Errorf("Expected one TP trade record, got %+v", acct.TradeHistory)
	}
	if _, ok := r.ledger.Position(); ok {
		t.Error("Expected position cleared")
	}
	if len(r.eventsOf(events.EventTradeClosed)) != 1 {
		t.Error("Expected one TRADE_CLOSED event")
	}
}

func TestScenarioStopLoss(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("0.66"))
	pnl := r.ledger.Close(ctx, d("99.25"), ReasonStopLoss)

	if !pnl.Equal(d("-0.495")) {
		t.Errorf("Expected pnl -0.495, got %s", pnl)
	}
	acct := r.ledger.Account()
	if !acct.CurrentBalance.Equal(d("19.505")) {
		t.Errorf("Expected balance 19.505, got %s", acct.CurrentBalance)
	}
	if acct.LossCount != 1 || acct.ConsecutiveLosses != 1 {
		t.Errorf("Expected 1 loss and 1 consecutive, got %d/%d", acct.LossCount, acct.ConsecutiveLosses)
	}
	if !acct.DailyRealizedLoss.Equal(d("0.495")) {
		t.Errorf("Expected daily realized loss 0.495, got %s", acct.DailyRealizedLoss)
	}
	// (20 - 19.505) / 20 * 100
	if !acct.MaxDrawdownPct.Equal(d("2.475")) {
		t.Errorf("Expected max drawdown 2.475, got %s", acct.MaxDrawdownPct)
	}
}

func TestShortPnL(t *testing.T) {
	r := newRig(t, "100", nil)
	ctx := context.Background()

	r.ledger.Open(ctx, SideShort, d("200"), d("2"))
	pnl := r.ledger.Close(ctx, d("190"), ReasonTakeProfit)
	if !pnl.Equal(d("20")) {
		t.Errorf("Expected short pnl 20, got %s", pnl)
	}
}

func TestBalanceAfterCloseEqualsBeforePlusPnL(t *testing.T) {
	r := newRig(t, "500", &circuit.CircuitBreakerConfig{Enabled: false})
	ctx := context.Background()

	trades := []struct {
		side  Side
		entry string
		exit  string
		qty   string
	}{
		{SideLong, "100", "103", "1.5"},
		{SideShort, "103", "104.2", "0.7"},
		{SideLong, "50", "49", "3"},
		{SideShort, "80", "60", "0.1"},
	}

	for _, tr := range trades {
		before := r.ledger.Account().CurrentBalance
		if !r.ledger.Open(ctx, tr.side, d(tr.entry), d(tr.qty)) {
			t.Fatalf("Expected open to succeed for %+v", tr)
		}
		pnl := r.ledger.Close(ctx, d(tr.exit), "test")
		after := r.ledger.Account().CurrentBalance
		if !after.Equal(before.Add(pnl)) {
			t.Errorf("Expected balance %s + %s, got %s", before, pnl, after)
		}
	}
}

func TestClosePositionMatchesID(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("0.66"))
	first, _ := r.ledger.Position()
	r.ledger.Close(ctx, d("100"), ReasonSignalFlip)
	r.ledger.Open(ctx, SideShort, d("100"), d("0.66"))

	if _, closed := r.ledger.ClosePosition(ctx, first.ID, d("101.3"), ReasonTakeProfit); closed {
		t.Error("Expected stale id close to be rejected")
	}
	if _, ok := r.ledger.Position(); !ok {
		t.Error("Expected newer position to survive a stale close")
	}

	second, _ := r.ledger.Position()
	if _, closed := r.ledger.ClosePosition(ctx, second.ID, d("99"), ReasonTakeProfit); !closed {
		t.Error("Expected matching id close to succeed")
	}
}

func TestScenarioGrowthPhaseReset(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	// +40 on 20 brings the balance to exactly 3x the starting balance
	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("140"), ReasonTakeProfit)

	acct := r.ledger.Account()
	if !acct.StartingBalance.Equal(d("60")) {
		t.Errorf("Expected starting balance 60, got %s", acct.StartingBalance)
	}
	if !acct.CurrentBalance.Equal(d("60")) || !acct.PeakBalance.Equal(d("60")) {
		t.Errorf("Expected current and peak 60, got %s/%s", acct.CurrentBalance, acct.PeakBalance)
	}
	if !acct.TotalWithdrawn.IsZero() {
		t.Errorf("Expected nothing withdrawn in growth, got %s", acct.TotalWithdrawn)
	}
	if !acct.TotalProfitRealized.Equal(d("40")) {
		t.Errorf("Expected profit realized 40, got %s", acct.TotalProfitRealized)
	}
	if acct.ResetCount != 1 || acct.GrowthPhaseResets != 1 || acct.ExtractionPhaseResets != 0 {
		t.Errorf("Expected one growth reset, got %d/%d/%d", acct.ResetCount, acct.GrowthPhaseResets, acct.ExtractionPhaseResets)
	}
	if len(r.eventsOf(events.EventPhaseReset)) != 1 {
		t.Error("Expected one PHASE_RESET event")
	}
}

func TestScenarioExtractionPhaseReset(t *testing.T) {
	r := newRig(t, "1000", nil)
	ctx := context.Background()

	// a 1% drawdown before the reset
	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("90"), ReasonStopLoss)
	if !r.ledger.Account().MaxDrawdownPct.Equal(d("1")) {
		t.Fatalf("Expected drawdown 1%%, got %s", r.ledger.Account().MaxDrawdownPct)
	}

	// 990 + 2010 reaches 3x the starting balance of 1000
	r.ledger.Open(ctx, SideLong, d("100"), d("20"))
	r.ledger.Close(ctx, d("200.5"), ReasonTakeProfit)

	acct := r.ledger.Account()
	profit := d("2000")
	if !acct.TotalWithdrawn.Equal(profit.Mul(d("0.95"))) {
		t.Errorf("Expected withdrawn 1900, got %s", acct.TotalWithdrawn)
	}
	if !acct.StartingBalance.Equal(d("1100")) {
		t.Errorf("Expected starting balance 1100, got %s", acct.StartingBalance)
	}
	if !acct.CurrentBalance.Equal(d("1100")) || !acct.PeakBalance.Equal(d("1100")) {
		t.Errorf("Expected current and peak 1100, got %s/%s", acct.CurrentBalance, acct.PeakBalance)
	}
	if !acct.MaxDrawdownPct.IsZero() {
		t.Errorf("Expected drawdown reset to 0, got %s", acct.MaxDrawdownPct)
	}
	if acct.ResetCount != 1 || acct.ExtractionPhaseResets != 1 || acct.GrowthPhaseResets != 0 {
		t.Errorf("Expected one extraction reset, got %d/%d/%d", acct.ResetCount, acct.GrowthPhaseResets, acct.ExtractionPhaseResets)
	}
	if phase := r.ledger.Snapshot().Phase; phase != PhaseExtraction {
		t.Errorf("Expected to stay in extraction, got %s", phase)
	}

	// the next reset is still an extraction
	r.ledger.Open(ctx, SideLong, d("100"), d("22"))
	r.ledger.Close(ctx, d("200"), ReasonTakeProfit)

	acct = r.ledger.Account()
	if !acct.TotalWithdrawn.Equal(d("3990")) {
		t.Errorf("Expected withdrawn 3990, got %s", acct.TotalWithdrawn)
	}
	if !acct.StartingBalance.Equal(d("1210")) {
		t.Errorf("Expected starting balance 1210, got %s", acct.StartingBalance)
	}
	if acct.ExtractionPhaseResets != 2 || acct.GrowthPhaseResets != 0 {
		t.Errorf("Expected two extraction resets, got %d/%d", acct.GrowthPhaseResets, acct.ExtractionPhaseResets)
	}
	if len(r.eventsOf(events.EventPhaseReset)) != 2 {
		t.Error("Expected two PHASE_RESET events")
	}
}

func TestScenarioEmergencyStop(t *testing.T) {
	r := newRig(t, "100", &circuit.CircuitBreakerConfig{
		Enabled:              true,
		EmergencyDrawdownPct: 20,
	})
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("75"), ReasonStopLoss)

	acct := r.ledger.Account()
	if !acct.TradingPaused {
		t.Fatal("Expected trading to be paused")
	}
	if acct.PausedAt == nil || acct.PauseReason == "" {
		t.Error("Expected pause timestamp and reason")
	}
	if r.liq.calls != 1 {
		t.Errorf("Expected one exchange force-close, got %d", r.liq.calls)
	}
	if r.ledger.ShouldTrade() {
		t.Error("Expected ShouldTrade false while paused")
	}
	if !r.store.saved.Account.TradingPaused {
		t.Error("Expected paused flag to be persisted")
	}
	if len(r.eventsOf(events.EventCircuitBreakerTripped)) != 1 {
		t.Error("Expected one CIRCUIT_BREAKER_TRIPPED event")
	}

	// a winning trade does not clear the pause
	r.ledger.Open(ctx, SideLong, d("100"), d("0.1"))
	r.ledger.Close(ctx, d("110"), ReasonTakeProfit)
	if r.ledger.ShouldTrade() {
		t.Error("Expected pause to survive later trades")
	}
	if r.liq.calls != 1 {
		t.Errorf("Expected no second force-close while paused, got %d", r.liq.calls)
	}

	if err := r.ledger.Resume(ctx); err != nil {
		t.Fatalf("Expected resume to succeed, got %v", err)
	}
	acct = r.ledger.Account()
	if acct.TradingPaused || !acct.MaxDrawdownPct.IsZero() {
		t.Errorf("Expected pause and drawdown cleared, got %v/%s", acct.TradingPaused, acct.MaxDrawdownPct)
	}
	if !acct.PeakBalance.Equal(acct.CurrentBalance) {
		t.Errorf("Expected peak rebased to %s, got %s", acct.CurrentBalance, acct.PeakBalance)
	}
	if !r.ledger.ShouldTrade() {
		ok, reason := r.ledger.TradeGate()
		t.Errorf("Expected trading allowed after resume, got %v (%s)", ok, reason)
	}
}

func TestResumeWhenNotPaused(t *testing.T) {
	r := newRig(t, "20", nil)
	if err := r.ledger.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Expected ErrNotPaused, got %v", err)
	}
}

func TestDailyLossWindowRollsOver(t *testing.T) {
	r := newRig(t, "100", &circuit.CircuitBreakerConfig{
		Enabled:         true,
		MaxDailyLossPct: 5,
	})
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("94"), ReasonStopLoss)

	ok, reason := r.ledger.TradeGate()
	if ok {
		t.Fatal("Expected daily loss limit to block trading")
	}
	if reason == "" {
		t.Error("Expected a blocking reason")
	}

	if st := r.ledger.Snapshot(); st.Account.DailyTradeCount != 1 || !st.Account.DailyRealizedLoss.Equal(d("6")) {
		t.Errorf("Expected same-day status 1/6, got %d/%s", st.Account.DailyTradeCount, st.Account.DailyRealizedLoss)
	}

	r.clock = r.clock.Add(24 * time.Hour)
	if !r.ledger.ShouldTrade() {
		t.Error("Expected trading allowed on the next day")
	}

	st := r.ledger.Snapshot()
	if st.Account.DailyTradeCount != 0 {
		t.Errorf("Expected status daily trade count 0 after midnight, got %d", st.Account.DailyTradeCount)
	}
	if !st.Account.DailyRealizedLoss.IsZero() {
		t.Errorf("Expected status daily loss 0 after midnight, got %s", st.Account.DailyRealizedLoss)
	}
	if !st.Account.DayStartBalance.Equal(d("94")) {
		t.Errorf("Expected status day start balance 94, got %s", st.Account.DayStartBalance)
	}
	if !st.CanTrade {
		t.Errorf("Expected status to allow trading, got blocked: %s", st.BlockedReason)
	}

	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("100"), "flat")
	acct := r.ledger.Account()
	if acct.DailyTradeCount != 1 {
		t.Errorf("Expected daily trade count 1 after rollover, got %d", acct.DailyTradeCount)
	}
	if !acct.DayStartBalance.Equal(d("94")) {
		t.Errorf("Expected day start balance 94, got %s", acct.DayStartBalance)
	}
	if acct.LastTradeDate != "2026-03-11" {
		t.Errorf("Expected last trade date 2026-03-11, got %s", acct.LastTradeDate)
	}
}

func TestConsecutiveLossesBlockAndReset(t *testing.T) {
	r := newRig(t, "1000", &circuit.CircuitBreakerConfig{
		Enabled:              true,
		MaxConsecutiveLosses: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r.ledger.Open(ctx, SideLong, d("100"), d("1"))
		r.ledger.Close(ctx, d("99"), ReasonStopLoss)
	}
	if r.ledger.ShouldTrade() {
		t.Error("Expected consecutive losses to block trading")
	}

	r.ledger.Open(ctx, SideLong, d("100"), d("1"))
	r.ledger.Close(ctx, d("101"), ReasonTakeProfit)
	if r.ledger.Account().ConsecutiveLosses != 0 {
		t.Error("Expected win to reset consecutive losses")
	}
}

func TestResetRefusedWhileOpen(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	r.ledger.Open(ctx, SideLong, d("100"), d("0.66"))
	if err := r.ledger.Reset(ctx); !errors.Is(err, ErrPositionOpen) {
		t.Errorf("Expected ErrPositionOpen, got %v", err)
	}

	r.ledger.Close(ctx, d("101.3"), ReasonTakeProfit)
	if err := r.ledger.Reset(ctx); err != nil {
		t.Fatalf("Expected reset to succeed, got %v", err)
	}
	acct := r.ledger.Account()
	if acct.TotalTrades != 0 || len(acct.TradeHistory) != 0 {
		t.Error("Expected fresh counters after reset")
	}
	if !acct.CurrentBalance.Equal(d("20")) {
		t.Errorf("Expected balance back at starting 20, got %s", acct.CurrentBalance)
	}
}

func TestLoadRestoresPositionAndWatches(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()
	r.ledger.Open(ctx, SideShort, d("100"), d("0.5"))
	want, _ := r.ledger.Position()

	watcher := &recordingWatcher{}
	restored := New(Config{Symbol: "LTCUSDT_UMCBL", InitialBalance: d("20")}, r.store, nil, nil, zerolog.Nop())
	restored.SetWatcher(watcher)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}

	got, ok := restored.Position()
	if !ok || got.ID != want.ID {
		t.Fatalf("Expected restored position %s, got %+v", want.ID, got)
	}
	if len(watcher.watched) != 1 {
		t.Errorf("Expected restored position to be watched, got %d", len(watcher.watched))
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	r := newRig(t, "20", nil)
	r.store.saveErr = errors.New("disk full")

	if !r.ledger.Open(context.Background(), SideLong, d("100"), d("0.66")) {
		t.Fatal("Expected open to succeed despite save failure")
	}
	if len(r.eventsOf(events.EventError)) != 1 {
		t.Error("Expected ERROR event for failed save")
	}
}

func TestSaveOutlivesCancelledCaller(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !r.ledger.Open(ctx, SideLong, d("100"), d("0.66")) {
		t.Fatal("Expected open to succeed")
	}
	if r.store.saved == nil || r.store.saved.Position == nil {
		t.Fatal("Expected opened position to be persisted")
	}
	pos, _ := r.ledger.Position()
	if r.store.saved.Position.ID != pos.ID {
		t.Errorf("Expected persisted position %s, got %s", pos.ID, r.store.saved.Position.ID)
	}

	r.ledger.Close(ctx, d("101"), ReasonSignalClose)
	if r.store.saved.Position != nil {
		t.Error("Expected close to be persisted")
	}
	if !r.store.saved.Account.CurrentBalance.Equal(d("20.66")) {
		t.Errorf("Expected persisted balance 20.66, got %s", r.store.saved.Account.CurrentBalance)
	}
	if len(r.eventsOf(events.EventError)) != 0 {
		t.Error("Expected no save errors")
	}
}

func TestConcurrentOpensAdmitExactlyOne(t *testing.T) {
	r := newRig(t, "20", nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := SideLong
			if i%2 == 0 {
				side = SideShort
			}
			if r.ledger.Open(ctx, side, d("100"), d("1")) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful open, got %d", wins)
	}
}
