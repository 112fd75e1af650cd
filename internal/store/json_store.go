package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/mindx/internal/domain"
)

type fileState struct {
	Progress map[string]domain.Progress `json:"progress"`
}

// JSONStore keeps every namespace in one JSON document, rewritten atomically on save.
type JSONStore struct {
	filePath string
	mu       sync.RWMutex
	state    fileState
}

// NewJSONStore opens (or lazily creates) the document at filePath.
func NewJSONStore(filePath string) (*JSONStore, error) {
	s := &JSONStore{
		filePath: filePath,
		state:    fileState{Progress: make(map[string]domain.Progress)},
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", filePath, err)
	}
	return s, nil
}

// LoadProgress implements Repository.
func (s *JSONStore) LoadProgress(_ context.Context, namespace string) (domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.Progress[namespace]
	if !ok {
		return domain.Progress{}, ErrNotFound
	}
	return p.Clone(), nil
}

// SaveProgress implements Repository.
func (s *JSONStore) SaveProgress(_ context.Context, namespace string, p domain.Progress, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.state.Progress[namespace]
	var stored int64
	if ok {
		stored = current.Version
	}
	if stored != expectedVersion {
		return fmt.Errorf("%w: expected version %d, stored %d", ErrVersionConflict, expectedVersion, stored)
	}

	s.state.Progress[namespace] = p.Clone()
	if err := s.persistLocked(); err != nil {
		if ok {
			s.state.Progress[namespace] = current
		} else {
			delete(s.state.Progress, namespace)
		}
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Ping implements Repository.
func (s *JSONStore) Ping(context.Context) error {
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements Repository.
func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Progress == nil {
		state.Progress = make(map[string]domain.Progress)
	}
	s.state = state
	return nil
}

func (s *JSONStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
