package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened           EventType = "TRADE_OPENED"
	EventTradeClosed           EventType = "TRADE_CLOSED"
	EventPositionRecovered     EventType = "POSITION_RECOVERED"
	EventPhaseReset            EventType = "PHASE_RESET"
	EventCircuitBreakerTripped EventType = "CIRCUIT_BREAKER_TRIPPED"
	EventTradingResumed        EventType = "TRADING_RESUMED"
	EventLedgerReset           EventType = "LEDGER_RESET"
	EventSyncAction            EventType = "SYNC_ACTION"
	EventSignalReceived        EventType = "SIGNAL_RECEIVED"
	EventSignalRejected        EventType = "SIGNAL_REJECTED"
	EventPriceFailure          EventType = "PRICE_FAILURE"
	EventMonitorStopped        EventType = "MONITOR_STOPPED"
	EventError                 EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
// A nil *EventBus is valid and drops everything.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
	sync        bool
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// NewSyncEventBus creates a bus that delivers on the publishing goroutine.
// Used by tests that assert on delivered events.
func NewSyncEventBus() *EventBus {
	eb := NewEventBus()
	eb.sync = true
	return eb
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	subs := make([]Subscriber, 0, len(eb.subscribers[event.Type])+len(eb.allSubs))
	subs = append(subs, eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range subs {
		if eb.sync {
			sub(event)
			continue
		}
		go sub(event)
	}
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
