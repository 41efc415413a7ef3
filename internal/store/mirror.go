package store

import (
	"context"

	"bitget-webhook-bot/internal/ledger"

	"github.com/rs/zerolog"
)

// MirrorStore saves to a primary store and best-effort to a secondary.
// Only primary failures are returned to the ledger.
type MirrorStore struct {
	primary   ledger.Store
	secondary ledger.Store
	logger    zerolog.Logger
}

// NewMirrorStore creates a mirrored store. secondary may be nil.
func NewMirrorStore(primary, secondary ledger.Store, logger zerolog.Logger) *MirrorStore {
	return &MirrorStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "mirror-store").Logger(),
	}
}

func (m *MirrorStore) Save(ctx context.Context, st ledger.State) error {
	if err := m.primary.Save(ctx, st); err != nil {
		return err
	}
	if m.secondary != nil {
		if err := m.secondary.Save(ctx, st); err != nil {
			m.logger.Warn().Err(err).Msg("Secondary snapshot save failed")
		}
	}
	return nil
}

// Load prefers the primary; the secondary is used only when the primary is empty
func (m *MirrorStore) Load(ctx context.Context) (*ledger.State, error) {
	st, err := m.primary.Load(ctx)
	if err != nil || st != nil || m.secondary == nil {
		return st, err
	}
	st, err = m.secondary.Load(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Secondary snapshot load failed")
		return nil, nil
	}
	if st != nil {
		m.logger.Info().Msg("Primary snapshot missing, restored from secondary")
	}
	return st, nil
}
