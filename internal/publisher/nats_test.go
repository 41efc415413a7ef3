package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bitget-webhook-bot/internal/events"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

type published struct {
	subject string
	data    []byte
}

type fakeStream struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: "LEDGER_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeStream) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublisherForwardsEvents(t *testing.T) {
	stream := &fakeStream{}
	p := New(stream, "bitget.ledger.events", "LTCUSDT_UMCBL", 8, zerolog.Nop())
	bus := events.NewSyncEventBus()
	p.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	bus.Publish(events.Event{Type: events.EventTradeClosed, Data: map[string]interface{}{"balance": "20.858"}})
	bus.Publish(events.Event{Type: events.EventSyncAction, Data: map[string]interface{}{"action": "in_sync"}})

	waitFor(t, func() bool { return len(stream.snapshot()) == 2 })
	cancel()
	<-done

	msgs := stream.snapshot()
	if msgs[0].subject != "bitget.ledger.events.trade_closed.LTCUSDT_UMCBL" {
		t.Errorf("Unexpected subject %s", msgs[0].subject)
	}

	var body Message
	if err := json.Unmarshal(msgs[0].data, &body); err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	if body.Type != events.EventTradeClosed || body.Symbol != "LTCUSDT_UMCBL" || body.ID == "" {
		t.Errorf("Unexpected message %+v", body)
	}
	if body.Data["balance"] != "20.858" {
		t.Errorf("Expected balance payload, got %v", body.Data)
	}
}

func TestPublisherSurvivesFailures(t *testing.T) {
	stream := &fakeStream{err: errors.New("no responders")}
	p := New(stream, "bitget.ledger.events", "LTCUSDT_UMCBL", 1, zerolog.Nop())

	p.enqueue(events.Event{Type: events.EventError})
	// Queue of one: second event is dropped
	p.enqueue(events.Event{Type: events.EventError})
	if len(p.queue) != 1 {
		t.Fatalf("Expected 1 queued message, got %d", len(p.queue))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	waitFor(t, func() bool { return len(p.queue) == 0 })
	cancel()
	<-done

	if len(stream.snapshot()) != 0 {
		t.Error("Expected no successful publishes")
	}
}
