package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStorageUnavailable is returned by a store that cannot be accessed, for
// example in a restricted browsing mode.
var ErrStorageUnavailable = errors.New("host: storage unavailable")

// Storage is durable client-side key/value storage.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
}

// MemoryStorage keeps items for the lifetime of the process.
type MemoryStorage struct {
	mu       sync.Mutex
	items    map[string]string
	disabled bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: map[string]string{}}
}

// Disable makes every subsequent access fail with ErrStorageUnavailable.
func (s *MemoryStorage) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
}

func (s *MemoryStorage) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return "", false, ErrStorageUnavailable
	}
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return ErrStorageUnavailable
	}
	s.items[key] = value
	return nil
}

// FileStorage persists items as a JSON object in a single file.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// DefaultFileStorage stores items under the user's configuration directory.
func DefaultFileStorage() (*FileStorage, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return NewFileStorage(filepath.Join(dir, "bugshot", "storage.json")), nil
}

func (s *FileStorage) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

func (s *FileStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load()
	if err != nil {
		return err
	}
	items[key] = value

	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) load() (map[string]string, error) {
	items := map[string]string{}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(b) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("%w: corrupt store %s: %v", ErrStorageUnavailable, s.path, err)
	}
	return items, nil
}
