// Package prefs persists small named key-value preference stores.
// File-backed stores live under ~/.config/haikuplus/<name>.toml.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// Store is a named key-value preference store. A missing key means "unset".
type Store interface {
	Name() string
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Remove(key string) error
}

const defaultPrefsDir = "~/.config/haikuplus"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPath returns the default file path for the named store.
func DefaultPath(name string) string {
	return defaultPrefsDir + "/" + name + ".toml"
}

// Open returns a store of the requested backend. An empty backend selects the
// TOML file store. path may be empty to use the backend default.
func Open(backend, name, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileStore(name, path)
	case BackendSQLite:
		if strings.TrimSpace(path) == "" {
			path = defaultPrefsDir + "/prefs.db"
		}
		resolved, err := expandPath(path)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		return NewSQLiteStore(name, resolved)
	case BackendMemory:
		return NewMemoryStore(name), nil
	default:
		return nil, fmt.Errorf("unknown prefs backend %q", backend)
	}
}

// FileStore keeps one store as a flat TOML table on disk. Every Put and
// Remove rewrites the file before returning.
type FileStore struct {
	name string
	path string

	mu sync.Mutex
}

// NewFileStore builds a FileStore for name at path, or at DefaultPath(name)
// when path is empty. The file is created lazily on first write.
func NewFileStore(name, path string) (*FileStore, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("store name is empty")
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath(name)
	}
	resolved, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &FileStore{name: name, path: resolved}, nil
}

// Name returns the store name.
func (s *FileStore) Name() string { return s.name }

// Path returns the resolved file path.
func (s *FileStore) Path() string { return s.path }

// Get reads key from disk.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Put writes key=value and flushes the file.
func (s *FileStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Remove deletes key and flushes the file. Removing a missing key is a no-op.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)

	bytes, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := toml.Unmarshal(bytes, &values); err != nil {
		return nil, fmt.Errorf("parse prefs: %w", err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(bytes); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store, used for ephemeral runs and tests.
type MemoryStore struct {
	name string

	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, values: make(map[string]string)}
}

// Name returns the store name.
func (s *MemoryStore) Name() string { return s.name }

// Get returns the value for key.
func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

// Put sets key.
func (s *MemoryStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
