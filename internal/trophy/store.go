package trophy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Keys used by the browser build of the site, kept so saved state carries over.
const (
	StorageKeyTrophies = "level30_easter_eggs"
	StorageKeyRsvpID   = "level30_rsvp_id"
)

// LocalStore is a small string-keyed store for client state.
type LocalStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FileStore is a LocalStore persisted as one JSON object on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at path. The file is created on first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the value for key. A missing file is an empty store.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set writes key and rewrites the file atomically.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return err
	}
	m[key] = value
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	m := map[string]string{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	return m, nil
}

// LoadState reads the saved found set and RSVP id. Corrupt values are treated as absent.
func LoadState(store LocalStore) (found []string, rsvpID string) {
	if raw, ok, err := store.Get(StorageKeyTrophies); err == nil && ok {
		if err := json.Unmarshal([]byte(raw), &found); err != nil {
			found = nil
		}
	}
	if id, ok, err := store.Get(StorageKeyRsvpID); err == nil && ok {
		rsvpID = id
	}
	return found, rsvpID
}

// Persister saves the found set and RSVP id to a LocalStore when they change.
// Save errors are logged and ignored.
type Persister struct {
	mu     sync.Mutex
	store  LocalStore
	logger *zap.Logger
	last   lastState
}

// NewPersister creates a persister.
func NewPersister(store LocalStore, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, logger: logger}
}

// Listen implements Listener.
func (p *Persister) Listen(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	foundChanged, rsvpChanged := p.last.diff(snap)
	if foundChanged {
		p.saveFound(snap.Found)
	}
	if rsvpChanged && snap.RsvpID != "" {
		if err := p.store.Set(StorageKeyRsvpID, snap.RsvpID); err != nil {
			p.logger.Warn("save rsvp id failed", zap.Error(err))
		}
	}
}

func (p *Persister) saveFound(found []string) {
	raw, err := json.Marshal(found)
	if err != nil {
		return
	}
	if err := p.store.Set(StorageKeyTrophies, string(raw)); err != nil {
		p.logger.Warn("save trophies failed", zap.Error(err))
	}
}
