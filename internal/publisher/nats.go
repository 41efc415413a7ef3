package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bitget-webhook-bot/internal/events"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// StreamPublisher is the slice of jetstream.JetStream used for fan-out
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Message is the JSON body published for every bus event
type Message struct {
	ID        string                 `json:"id"`
	Type      events.EventType       `json:"type"`
	Symbol    string                 `json:"symbol"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Connect dials NATS with unlimited reconnects and opens JetStream
func Connect(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	logger = logger.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("bitget-webhook-bot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}
	return nc, js, nil
}

// EnsureStream creates or updates the stream that captures every subject
// under prefix
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{prefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// Publisher forwards bus events to JetStream. Subjects follow
// {prefix}.{event_type}.{symbol}.
type Publisher struct {
	js     StreamPublisher
	prefix string
	symbol string
	queue  chan Message
	logger zerolog.Logger
}

// New creates a publisher with a bounded queue
func New(js StreamPublisher, prefix, symbol string, queueSize int, logger zerolog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Publisher{
		js:     js,
		prefix: prefix,
		symbol: symbol,
		queue:  make(chan Message, queueSize),
		logger: logger.With().Str("component", "publisher").Logger(),
	}
}

// Attach subscribes the publisher to every bus event
func (p *Publisher) Attach(bus *events.EventBus) {
	bus.SubscribeAll(p.enqueue)
}

func (p *Publisher) enqueue(ev events.Event) {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      ev.Type,
		Symbol:    p.symbol,
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn().Str("event", string(ev.Type)).Msg("Publish queue full, dropping event")
	}
}

// Subject returns the subject an event type is published on
func (p *Publisher) Subject(t events.EventType) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, strings.ToLower(string(t)), p.symbol)
}

// Run publishes queued events until ctx is cancelled
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			if err := p.publish(ctx, msg); err != nil {
				// Non-fatal
				p.logger.Warn().Err(err).Str("event", string(msg.Type)).Msg("Outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = p.js.Publish(ctx, p.Subject(msg.Type), data, jetstream.WithMsgID(msg.ID))
	return err
}
