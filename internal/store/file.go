// Package store persists ledger snapshots. The file store is the durable
// primary; the Redis store mirrors it for other processes and dashboards.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitget-webhook-bot/internal/ledger"
)

// CurrentVersion is the snapshot schema version written by this build
const CurrentVersion = 1

var ErrUnsupportedSnapshotVersion = errors.New("store: unsupported snapshot version")

// Snapshot is the versioned on-disk schema
type Snapshot struct {
	Version  int              `json:"version"`
	SavedAt  time.Time        `json:"saved_at"`
	Account  ledger.Account   `json:"account"`
	Position *ledger.Position `json:"position,omitempty"`
}

// Encode wraps ledger state in the current schema
func Encode(st ledger.State, now time.Time) ([]byte, error) {
	snap := Snapshot{
		Version:  CurrentVersion,
		SavedAt:  now.UTC(),
		Account:  st.Account,
		Position: st.Position,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot and rejects unknown versions
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSnapshotVersion, snap.Version)
	}
	return &snap, nil
}

// FileStore writes snapshots atomically: temp file, fsync, rename
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a store at path, creating the parent directory
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Path returns the snapshot file location
func (s *FileStore) Path() string {
	return s.path
}

// Save replaces the snapshot file. A write that already started is not
// interrupted by ctx; only an expired deadline skips it.
func (s *FileStore) Save(ctx context.Context, st ledger.State) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	data, err := Encode(st, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// Load reads the snapshot. Returns nil, nil when the file does not exist.
func (s *FileStore) Load(ctx context.Context) (*ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &ledger.State{Account: snap.Account, Position: snap.Position}, nil
}
