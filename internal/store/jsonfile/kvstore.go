// Package jsonfile provides JSON file-backed stores.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/hay-kot/shelter/internal/core/offline"
)

// errCorrupt marks a KV file that exists but cannot be parsed.
var errCorrupt = errors.New("corrupt kv file")

// ErrInvalidValue is returned by KVStore.Set for values that are not UTF-8
// text.
var ErrInvalidValue = errors.New("invalid kv value")

// KVFile is the root JSON structure stored on disk for KV data.
type KVFile struct {
	Entries map[string]KVEntry `json:"entries"`
}

// KVEntry is a single stored value. Values are kept as UTF-8 strings so the
// file mirrors browser-style string storage and stays readable when
// inspected.
type KVEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KVStore implements offline.Storage using a JSON file for persistence.
// Writes are atomic: the file is replaced by rename, so readers in other
// processes never see a partially written document.
type KVStore struct {
	path  string
	quota int
	mu    sync.RWMutex
}

var _ offline.Storage = (*KVStore)(nil)

// NewKVStore creates a new JSON file KV store at the given path.
func NewKVStore(path string) *KVStore {
	return &KVStore{path: path}
}

// WithQuota limits the total size of stored values in bytes. Zero disables
// the limit.
func (s *KVStore) WithQuota(bytes int) *KVStore {
	s.quota = bytes
	return s
}

// Path returns the file backing the store.
func (s *KVStore) Path() string {
	return s.path
}

// lockPath returns the path to the lock file.
func (s *KVStore) lockPath() string {
	return s.path + ".lock"
}

// withSharedLock executes fn while holding a shared (read) file lock.
// Multiple processes can hold shared locks simultaneously.
func (s *KVStore) withSharedLock(fn func() error) error {
	return s.withFileLock(syscall.LOCK_SH, fn)
}

// withExclusiveLock executes fn while holding an exclusive (write) file lock.
func (s *KVStore) withExclusiveLock(fn func() error) error {
	return s.withFileLock(syscall.LOCK_EX, fn)
}

func (s *KVStore) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// Get returns the value for key. Returns offline.ErrNotFound if not found.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		entry KVEntry
		found bool
	)

	err := s.withSharedLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		entry, found = file.Entries[key]
		return nil
	})
	if errors.Is(err, errCorrupt) {
		// nothing in an unparseable file is readable; the next Set replaces it
		return nil, fmt.Errorf("%w: %w", offline.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, offline.ErrNotFound
	}

	return []byte(entry.Value), nil
}

// Set creates or replaces the value for key. Values must be valid UTF-8;
// anything else could not be stored unchanged.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if !utf8.Valid(value) {
		return fmt.Errorf("%w: value for %q is not valid UTF-8", ErrInvalidValue, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withExclusiveLock(func() error {
		file, err := s.load()
		if errors.Is(err, errCorrupt) {
			// set aside the unreadable file and start over so writes keep working
			if err := os.Rename(s.path, s.path+".corrupt"); err != nil {
				return fmt.Errorf("move corrupt file: %w", err)
			}
			file, err = KVFile{Entries: make(map[string]KVEntry)}, nil
		}
		if err != nil {
			return err
		}

		if s.quota > 0 {
			size := len(value)
			for k, e := range file.Entries {
				if k != key {
					size += len(e.Value)
				}
			}
			if size > s.quota {
				return fmt.Errorf("%w: %d bytes exceeds %d", offline.ErrQuotaExceeded, size, s.quota)
			}
		}

		file.Entries[key] = KVEntry{Value: string(value), UpdatedAt: time.Now()}
		return s.save(file)
	})
}

// Delete removes key. Returns offline.ErrNotFound if not found.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notFound bool

	err := s.withExclusiveLock(func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		if _, ok := file.Entries[key]; !ok {
			notFound = true
			return nil
		}

		delete(file.Entries, key)
		return s.save(file)
	})
	if err != nil {
		return err
	}

	if notFound {
		return offline.ErrNotFound
	}

	return nil
}

// load reads the KV file from disk.
// Returns empty KVFile if file doesn't exist.
func (s *KVStore) load() (KVFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return KVFile{Entries: make(map[string]KVEntry)}, nil
		}
		return KVFile{}, err
	}

	if len(data) == 0 {
		return KVFile{Entries: make(map[string]KVEntry)}, nil
	}

	var file KVFile
	if err := json.Unmarshal(data, &file); err != nil {
		return KVFile{}, fmt.Errorf("%w: parse %s: %w", errCorrupt, s.path, err)
	}

	if file.Entries == nil {
		file.Entries = make(map[string]KVEntry)
	}

	return file, nil
}

// save writes the KV file to disk atomically.
func (s *KVStore) save(file KVFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
