// Package storage provides the durable key-value store the bridge keeps its
// configuration document in. Values are raw strings and are stored verbatim.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KV is a durable string key-value store.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FileStore keeps all keys in a single JSON object on disk.
type FileStore struct {
	mu       sync.RWMutex
	data     map[string]string
	filePath string
}

// NewFileStore creates a store backed by the given file, loading any existing data.
func NewFileStore(filePath string) (*FileStore, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve path: %w", err)
	}

	s := &FileStore{
		data:     make(map[string]string),
		filePath: abs,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Get returns the raw value for key and whether it exists.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key and persists the whole store.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return s.persist()
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", s.filePath, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("storage: decode %s: %w", s.filePath, err)
	}
	if s.data == nil {
		s.data = make(map[string]string)
	}

	return nil
}

// persist writes to a temp file and renames it over the target. Callers hold mu.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o750); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}

	return nil
}

// MemoryStore is a non-durable KV, used when no file is configured and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value for key and whether it exists.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}
