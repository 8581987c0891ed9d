// Package credential persists the single watch-history Authorization record.
package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/waabox/watchsweep/internal/domain"
)

// ErrMalformed is returned by Load when the record exists but cannot be decoded.
// It is fatal: the caller must not fall back to a fresh device flow.
var ErrMalformed = errors.New("malformed credential record")

// Store abstracts persistence for the Authorization.
type Store interface {
	Load() (*domain.Authorization, error)
	Save(domain.Authorization) error
}

// FileStore writes the Authorization to a JSON file on disk.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore builds a FileStore at path. A sibling "<path>.lock" file serialises
// access between processes.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the record location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the Authorization from disk. A missing file resolves to nil without error.
func (s *FileStore) Load() (*domain.Authorization, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock credentials: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var auth domain.Authorization
	if err := dec.Decode(&auth); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, s.path, err)
	}
	return &auth, nil
}

// Save replaces the record with auth. The new content is written to a temp file in the
// same directory, synced, then renamed over the target so readers never see a partial file.
func (s *FileStore) Save(auth domain.Authorization) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock credentials: %w", err)
	}
	defer s.lock.Unlock()

	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".watchsweep-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename credentials: %w", err)
	}
	return nil
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ensure credentials directory: %w", err)
	}
	return nil
}
