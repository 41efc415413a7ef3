package risk

import (
	"context"
	"sync"

	"bitget-webhook-bot/internal/events"
	"bitget-webhook-bot/internal/exchange"
	"bitget-webhook-bot/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Supervisor keeps at most one Monitor alive. It implements
// ledger.PositionWatcher; Watch never blocks and never calls the ledger.
type Supervisor struct {
	gateway exchange.Gateway
	ledger  PositionCloser
	cfg     MonitorConfig
	bus     *events.EventBus
	logger  zerolog.Logger

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	current uuid.UUID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool

	onExit func(ledger.Position, Outcome)
}

// NewSupervisor creates a supervisor for the given ledger
func NewSupervisor(gateway exchange.Gateway, l PositionCloser, cfg MonitorConfig, bus *events.EventBus, logger zerolog.Logger) *Supervisor {
	base, stop := context.WithCancel(context.Background())
	return &Supervisor{
		gateway: gateway,
		ledger:  l,
		cfg:     cfg,
		bus:     bus,
		logger:  logger.With().Str("component", "risk-supervisor").Logger(),
		base:    base,
		stop:    stop,
	}
}

// OnExit registers a callback run after each monitor terminates
func (s *Supervisor) OnExit(fn func(ledger.Position, Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Watch cancels the running monitor, if any, and starts one for pos
func (s *Supervisor) Watch(pos ledger.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.current = pos.ID
	onExit := s.onExit

	m := NewMonitor(pos, s.gateway, s.ledger, s.cfg, s.bus, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		outcome := m.Run(ctx)

		s.mu.Lock()
		if s.current == pos.ID {
			s.current = uuid.Nil
			s.cancel = nil
		}
		s.mu.Unlock()

		if onExit != nil {
			onExit(pos, outcome)
		}
	}()
}

// Active returns the id of the position being watched
func (s *Supervisor) Active() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != uuid.Nil
}

// Run blocks until ctx is done, then stops every monitor
func (s *Supervisor) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels the running monitor and waits for it to exit
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.logger.Info().Msg("Risk supervisor stopped")
}

var _ ledger.PositionWatcher = (*Supervisor)(nil)
