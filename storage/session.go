package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStorage implements fiber's Storage interface on top of one file per
// session. Session values carry sealed mailbox credentials, so files are
// written with owner-only permissions.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

type entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewFileStorage(directory string) (*FileStorage, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, err
	}
	return &FileStorage{dir: directory}, nil
}

// Get returns the value for key, or nil when the key is unknown or expired.
func (s *FileStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		os.Remove(s.path(key))
		return nil, nil
	}

	return e.Value, nil
}

// Set stores val under key. A zero exp means the entry never expires.
func (s *FileStorage) Set(key string, val []byte, exp time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := entry{Value: val}
	if exp > 0 {
		e.ExpiresAt = time.Now().Add(exp)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(key), data, 0600)
}

func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Reset removes every stored session.
func (s *FileStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, d := range entries {
		if filepath.Ext(d.Name()) == ".session" {
			os.Remove(filepath.Join(s.dir, d.Name()))
		}
	}
	return nil
}

func (s *FileStorage) Close() error {
	return nil
}

// path maps a session key to a filename. Keys come from fiber's session
// middleware but are encoded anyway so they can never escape the directory.
func (s *FileStorage) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.dir, name+".session")
}

func (s *FileStorage) read(key string) (*entry, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
