// Package session persists review session snapshots as a JSON file.
// A snapshot is always written whole; partial updates would leave the
// file unreconstructable after a crash.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pamin/idms/internal/core/domain"
)

// Store implements ports.SessionStore on a single state file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the current snapshot. A malformed file is reported as
// domain.ErrSessionCorrupted so callers can map it to the corrupted
// state instead of a generic failure.
func (s *Store) Load(_ context.Context) (*domain.ReviewSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var session domain.ReviewSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, domain.WrapError(domain.ErrSessionCorrupted, "session.Load",
			fmt.Errorf("malformed JSON in session file: %w", err))
	}
	return &session, nil
}

// Save replaces the snapshot atomically via a temp file rename.
func (s *Store) Save(_ context.Context, session *domain.ReviewSession) error {
	if session == nil {
		return domain.WrapError(domain.ErrInvalidInput, "session.Save",
			fmt.Errorf("nil session"))
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swap session file: %w", err)
	}
	return nil
}
