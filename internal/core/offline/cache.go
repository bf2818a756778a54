package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Cache memoizes JSON values in a single namespaced document in durable
// storage and serves reads from an in-memory mirror of that document.
//
// Entries older than FreshnessWindow are reported as absent but are never
// removed on read; storage only shrinks through Delete or Purge.
type Cache struct {
	storage   Storage
	namespace string
	clock     clockwork.Clock
	log       zerolog.Logger
	recorder  Recorder

	mu     sync.RWMutex
	mirror Document
}

// Option configures a Cache.
type Option func(*Cache)

// WithNamespace overrides the storage key that holds the cache document.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

// WithClock sets the time source used for timestamps and freshness checks.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// New creates a Cache and loads the namespace document into memory. A missing
// or corrupt document yields an empty cache; New never fails.
func New(ctx context.Context, storage Storage, opts ...Option) *Cache {
	c := &Cache{
		storage:   storage,
		namespace: DefaultNamespace,
		clock:     clockwork.NewRealClock(),
		log:       zerolog.Nop(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}

	doc, err := c.load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("namespace", c.namespace).Msg("cache storage unreadable, starting empty")
		doc = Document{}
	}

	c.mirror = doc
	c.recorder.CacheEntries(len(doc))
	return c
}

// Namespace returns the storage key holding the cache document.
func (c *Cache) Namespace() string {
	return c.namespace
}

// CacheData stores data under key with the current time, replacing any
// previous entry. The whole document is re-read from storage, updated and
// written back; the in-memory mirror changes only if the write succeeds.
//
// Failures wrap ErrEncode or ErrStorage (and ErrQuotaExceeded when the
// storage reports it). Nothing is retried.
func (c *Cache) CacheData(ctx context.Context, key string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		c.recorder.CacheWrite(false)
		return err
	}

	ts := c.clock.Now().UnixMilli()
	if prev, ok := doc[key]; ok && prev.Timestamp > ts {
		// keep per-key timestamps non-decreasing if the clock steps back
		ts = prev.Timestamp
	}

	doc[key] = Entry{Data: data, Timestamp: ts}

	if err := c.save(ctx, doc); err != nil {
		c.recorder.CacheWrite(false)
		return fmt.Errorf("cache %q: %w", key, err)
	}

	c.mirror = doc
	c.recorder.CacheWrite(true)
	c.recorder.CacheEntries(len(doc))
	return nil
}

// GetCachedData returns the data stored under key. It reports false when the
// key is missing or the entry has reached FreshnessWindow.
func (c *Cache) GetCachedData(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	entry, ok := c.mirror[key]
	c.mu.RUnlock()

	if !ok {
		c.recorder.CacheLookup("miss")
		return nil, false
	}

	if !c.fresh(entry) {
		c.recorder.CacheLookup("expired")
		return nil, false
	}

	c.recorder.CacheLookup("hit")
	return entry.Data, true
}

// EntryInfo describes a cached entry, including expired ones.
type EntryInfo struct {
	Key   string
	Entry Entry
	Fresh bool
}

// Entries returns every entry in the mirror sorted by key, expired entries
// included, so callers can inspect raw timestamps.
func (c *Cache) Entries() []EntryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(c.mirror))
	infos := make([]EntryInfo, 0, len(keys))
	for _, k := range keys {
		e := c.mirror[k]
		infos = append(infos, EntryInfo{Key: k, Entry: e, Fresh: c.fresh(e)})
	}
	return infos
}

// Age returns how long ago the entry for key was written.
func (c *Cache) Age(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.mirror[key]
	if !ok {
		return 0, false
	}
	return c.clock.Since(e.WrittenAt()), true
}

// Delete removes key from the document. It returns ErrNotFound if the key
// is not stored.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		return err
	}

	if _, ok := doc[key]; !ok {
		return ErrNotFound
	}
	delete(doc, key)

	if err := c.save(ctx, doc); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	c.mirror = doc
	c.recorder.CacheEntries(len(doc))
	return nil
}

// Purge removes expired entries whose key matches the doublestar pattern and
// returns how many were removed. An empty pattern matches every key. Fresh
// entries are never removed.
func (c *Cache) Purge(ctx context.Context, pattern string) (int, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return 0, fmt.Errorf("invalid pattern %q", pattern)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for key, e := range doc {
		if c.fresh(e) || !MatchKey(pattern, key) {
			continue
		}
		delete(doc, key)
		removed++
	}

	if removed == 0 {
		c.mirror = doc
		return 0, nil
	}

	if err := c.save(ctx, doc); err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}

	c.mirror = doc
	c.recorder.CacheEntries(len(doc))
	c.log.Debug().Int("removed", removed).Str("pattern", pattern).Msg("purged expired entries")
	return removed, nil
}

// Reload replaces the mirror with the document currently in storage. A
// corrupt document reloads as empty; storage read errors are returned and
// leave the mirror untouched.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load(ctx)
	if err != nil {
		return err
	}

	c.mirror = doc
	c.recorder.CacheEntries(len(doc))
	return nil
}

// MatchKey reports whether key matches the doublestar pattern. An empty
// pattern matches everything; an invalid one matches nothing.
func MatchKey(pattern, key string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

func (c *Cache) fresh(e Entry) bool {
	age := c.clock.Now().UnixMilli() - e.Timestamp
	return age < FreshnessWindow.Milliseconds()
}

// load reads the namespace document from storage.
// Returns an empty document if it doesn't exist or can't be parsed.
func (c *Cache) load(ctx context.Context) (Document, error) {
	data, err := c.storage.Get(ctx, c.namespace)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("%w: read namespace %q: %w", ErrStorage, c.namespace, err)
	}

	if len(data) == 0 {
		return Document{}, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		c.log.Warn().Err(err).Str("namespace", c.namespace).Msg("discarding corrupt cache document")
		return Document{}, nil
	}

	if doc == nil {
		doc = Document{}
	}

	return doc, nil
}

// save writes the whole document to storage in a single Set.
func (c *Cache) save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if err := c.storage.Set(ctx, c.namespace, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return nil
}
