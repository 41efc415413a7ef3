package database

import (
	"context"
	"time"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/ledger"

	"github.com/rs/zerolog"
)

// JournalWriter persists ledger events
type JournalWriter interface {
	InsertTrade(ctx context.Context, symbol string, rec ledger.TradeRecord) error
	InsertPhaseReset(ctx context.Context, symbol string, reset ledger.PhaseReset, at time.Time) error
	InsertEvent(ctx context.Context, symbol, eventType string, payload map[string]interface{}, at time.Time) error
}

// auditedEvents are stored verbatim in ledger_events
var auditedEvents = []events.EventType{
	events.EventPositionRecovered,
	events.EventCircuitBreakerTripped,
	events.EventTradingResumed,
	events.EventLedgerReset,
	events.EventSyncAction,
	events.EventPriceFailure,
	events.EventError,
}

// Journal copies closed trades, phase resets and operational events into
// PostgreSQL. Writes are queued so bus delivery never blocks on the database.
type Journal struct {
	writer       JournalWriter
	symbol       string
	queue        chan events.Event
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewJournal creates a journal with a bounded write queue
func NewJournal(writer JournalWriter, symbol string, queueSize int, logger zerolog.Logger) *Journal {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Journal{
		writer:       writer,
		symbol:       symbol,
		queue:        make(chan events.Event, queueSize),
		writeTimeout: 5 * time.Second,
		logger:       logger.With().Str("component", "journal").Logger(),
	}
}

// Attach subscribes the journal to the bus
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventTradeClosed, j.enqueue)
	bus.Subscribe(events.EventPhaseReset, j.enqueue)
	for _, t := range auditedEvents {
		bus.Subscribe(t, j.enqueue)
	}
}

func (j *Journal) enqueue(ev events.Event) {
	select {
	case j.queue <- ev:
	default:
		j.logger.Warn().Str("event", string(ev.Type)).Msg("Journal queue full, dropping event")
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-j.queue:
			j.write(ctx, ev)
		case <-ctx.Done():
			j.flush()
			return nil
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case ev := <-j.queue:
			j.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.writeTimeout)
	defer cancel()

	var err error
	switch ev.Type {
	case events.EventTradeClosed:
		rec, ok := ev.Data["trade"].(ledger.TradeRecord)
		if !ok {
			j.logger.Warn().Msg("Trade event without trade record")
			return
		}
		err = j.writer.InsertTrade(ctx, j.symbol, rec)
	case events.EventPhaseReset:
		reset, ok := ev.Data["reset"].(ledger.PhaseReset)
		if !ok {
			j.logger.Warn().Msg("Phase event without reset details")
			return
		}
		err = j.writer.InsertPhaseReset(ctx, j.symbol, reset, ev.Timestamp)
	default:
		err = j.writer.InsertEvent(ctx, j.symbol, string(ev.Type), ev.Data, ev.Timestamp)
	}
	if err != nil {
		j.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Journal write failed")
	}
}
