package metrics

import (
	"strconv"
	"time"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatusSource exposes the ledger view the gauges are refreshed from
type StatusSource interface {
	Snapshot() ledger.Status
}

// Metrics holds all Prometheus metrics for the bot
type Metrics struct {
	// --- Signals ---
	SignalsReceived *prometheus.CounterVec
	SignalsRejected *prometheus.CounterVec

	// --- Ledger ---
	TradesClosed      *prometheus.CounterVec
	PhaseResets       *prometheus.CounterVec
	BreakerTrips      prometheus.Counter
	Balance           prometheus.Gauge
	StartingBalance   prometheus.Gauge
	PeakBalance       prometheus.Gauge
	MaxDrawdownPct    prometheus.Gauge
	ConsecutiveLosses prometheus.Gauge
	TradingPaused     prometheus.Gauge
	PositionOpen      prometheus.Gauge

	// --- Background workers ---
	SyncActions     *prometheus.CounterVec
	MonitorOutcomes *prometheus.CounterVec
	PriceFailures   prometheus.Counter
	Errors          *prometheus.CounterVec

	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SignalsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_received_total",
			Help: "Signals executed by the handler",
		}, []string{"action"}),

		SignalsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_rejected_total",
			Help: "Signals rejected before or during execution",
		}, []string{"action"}),

		TradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_closed_total",
			Help: "Synthetic trades closed, by reason and result",
		}, []string{"reason", "result"}),

		PhaseResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_phase_resets_total",
			Help: "Compounding resets by phase",
		}, []string{"phase"}),

		BreakerTrips: f.NewCounter(prometheus.CounterOpts{
			Name: "bot_circuit_breaker_trips_total",
			Help: "Emergency stops triggered by drawdown",
		}),

		Balance: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_balance",
			Help: "Current virtual balance",
		}),

		StartingBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_starting_balance",
			Help: "Starting balance of the current phase",
		}),

		PeakBalance: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_peak_balance",
			Help: "Drawdown high-water mark",
		}),

		MaxDrawdownPct: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_max_drawdown_pct",
			Help: "Largest peak-to-current drawdown since the last resume",
		}),

		ConsecutiveLosses: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_consecutive_losses",
			Help: "Losing trades in a row",
		}),

		TradingPaused: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_trading_paused",
			Help: "1 while the emergency stop is active",
		}),

		PositionOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "bot_position_open",
			Help: "1 while a synthetic position is open",
		}),

		SyncActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_sync_actions_total",
			Help: "Reconciliation outcomes",
		}, []string{"action"}),

		MonitorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_monitor_outcomes_total",
			Help: "How TP/SL monitors finished",
		}, []string{"outcome"}),

		PriceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "bot_monitor_price_failures_total",
			Help: "Monitors that gave up after repeated price errors",
		}),

		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_errors_total",
			Help: "Errors published on the event bus",
		}, []string{"source"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bot_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

// Attach subscribes the metrics to every bus event. Gauges are refreshed
// from source after each event.
func (m *Metrics) Attach(bus *events.EventBus, source StatusSource) {
	bus.SubscribeAll(func(ev events.Event) {
		m.Observe(ev)
		if source != nil {
			m.Refresh(source.Snapshot())
		}
	})
}

// Observe updates counters for one event
func (m *Metrics) Observe(ev events.Event) {
	switch ev.Type {
	case events.EventSignalReceived:
		m.SignalsReceived.WithLabelValues(stringField(ev, "action")).Inc()
	case events.EventSignalRejected:
		m.SignalsRejected.WithLabelValues(stringField(ev, "action")).Inc()
	case events.EventTradeClosed:
		if rec, ok := ev.Data["trade"].(ledger.TradeRecord); ok {
			result := "win"
			if rec.PnL.IsNegative() {
				result = "loss"
			}
			m.TradesClosed.WithLabelValues(rec.Reason, result).Inc()
		}
	case events.EventPhaseReset:
		if reset, ok := ev.Data["reset"].(ledger.PhaseReset); ok {
			m.PhaseResets.WithLabelValues(string(reset.Phase)).Inc()
		}
	case events.EventCircuitBreakerTripped:
		m.BreakerTrips.Inc()
	case events.EventSyncAction:
		m.SyncActions.WithLabelValues(stringField(ev, "action")).Inc()
	case events.EventMonitorStopped:
		m.MonitorOutcomes.WithLabelValues(stringField(ev, "outcome")).Inc()
	case events.EventPriceFailure:
		m.PriceFailures.Inc()
	case events.EventError:
		m.Errors.WithLabelValues(stringField(ev, "source")).Inc()
	}
}

// Refresh sets the account gauges from a ledger snapshot
func (m *Metrics) Refresh(st ledger.Status) {
	acct := st.Account
	m.Balance.Set(acct.CurrentBalance.InexactFloat64())
	m.StartingBalance.Set(acct.StartingBalance.InexactFloat64())
	m.PeakBalance.Set(acct.PeakBalance.InexactFloat64())
	m.MaxDrawdownPct.Set(acct.MaxDrawdownPct.InexactFloat64())
	m.ConsecutiveLosses.Set(float64(acct.ConsecutiveLosses))
	m.TradingPaused.Set(boolGauge(acct.TradingPaused))
	m.PositionOpen.Set(boolGauge(st.Position != nil))
}

// GinMiddleware records request counts and latency by route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func stringField(ev events.Event, key string) string {
	if s, ok := ev.Data[key].(string); ok {
		return s
	}
	return ""
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
