// Package offline provides the durable, TTL-bounded key/value cache that keeps
// emergency data available without network access.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	// DefaultNamespace is the storage key holding the whole cache document.
	DefaultNamespace = "shelter-offline-cache"

	// FreshnessWindow is how long an entry is returned after it was written.
	FreshnessWindow = 24 * time.Hour
)

var (
	// ErrNotFound is returned by a Storage when the requested key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrStorage wraps any failure to read or write the cache document while
	// mutating it.
	ErrStorage = errors.New("cache storage failure")

	// ErrEncode wraps failures to serialize a value or the cache document.
	ErrEncode = errors.New("encode cache value")

	// ErrQuotaExceeded is returned by a Storage that refuses a write because it
	// would grow past its configured capacity.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Entry is a single cached value and the time it was written, in
// milliseconds since the Unix epoch.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// WrittenAt returns the entry timestamp as a time.Time.
func (e Entry) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Document is the full persisted cache: every key in the namespace mapped to
// its entry. It is always read and written as a whole.
type Document map[string]Entry

// Storage is durable, string-keyed byte storage with no expiry of its own.
// Get returns ErrNotFound when the key has never been written.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Recorder receives cache events for metrics. Lookup results are one of
// "hit", "miss" or "expired".
type Recorder interface {
	CacheLookup(result string)
	CacheWrite(ok bool)
	CacheEntries(n int)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string) {}
func (nopRecorder) CacheWrite(bool)    {}
func (nopRecorder) CacheEntries(int)   {}
