package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/offline"
	"github.com/hay-kot/shelter/internal/store/memory"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newCache(t *testing.T, store offline.Storage) (*offline.Cache, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	return offline.New(context.Background(), store, offline.WithClock(clock)), clock
}

type failingStorage struct {
	getErr error
	setErr error
	data   []byte
}

func (f *failingStorage) Get(context.Context, string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.data == nil {
		return nil, offline.ErrNotFound
	}
	return f.data, nil
}

func (f *failingStorage) Set(_ context.Context, _ string, v []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.data = v
	return nil
}

type countingRecorder struct {
	mu      sync.Mutex
	lookups map[string]int
	writes  map[bool]int
	entries int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{lookups: map[string]int{}, writes: map[bool]int{}}
}

func (r *countingRecorder) CacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[result]++
}

func (r *countingRecorder) CacheWrite(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes[ok]++
}

func (r *countingRecorder) CacheEntries(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = n
}

func TestCache_RoundTrip(t *testing.T) {
	cache, _ := newCache(t, memory.New())
	ctx := context.Background()

	values := []string{
		`{"shelters":[{"id":1,"name":"Central Gym","capacity":250}]}`,
		`[1,2,3]`,
		`"plain string"`,
		`42`,
		`null`,
	}

	for i, v := range values {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, cache.CacheData(ctx, key, json.RawMessage(v)))

		got, ok := cache.GetCachedData(key)
		require.True(t, ok, "key %s should be present", key)
		assert.JSONEq(t, v, string(got))
	}
}

func TestCache_FreshnessBoundary(t *testing.T) {
	cache, clock := newCache(t, memory.New())
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "shelters", json.RawMessage(`{"n":1}`)))

	clock.Advance(offline.FreshnessWindow - time.Millisecond)
	_, ok := cache.GetCachedData("shelters")
	assert.True(t, ok, "entry should be fresh one millisecond before the window closes")

	clock.Advance(time.Millisecond)
	_, ok = cache.GetCachedData("shelters")
	assert.False(t, ok, "entry should be absent once the window has elapsed")

	clock.Advance(time.Hour)
	_, ok = cache.GetCachedData("shelters")
	assert.False(t, ok)
}

func TestCache_ExpiredEntriesStayInStorage(t *testing.T) {
	store := memory.New()
	cache, clock := newCache(t, store)
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "old", json.RawMessage(`"v"`)))
	clock.Advance(48 * time.Hour)

	_, ok := cache.GetCachedData("old")
	require.False(t, ok)

	raw, err := store.Get(ctx, offline.DefaultNamespace)
	require.NoError(t, err)

	var doc offline.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "old")

	entries := cache.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "old", entries[0].Key)
	assert.False(t, entries[0].Fresh)
	assert.Equal(t, epoch.UnixMilli(), entries[0].Entry.Timestamp)
}

func TestCache_OverwriteRefreshesTimestamp(t *testing.T) {
	cache, clock := newCache(t, memory.New())
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "k", json.RawMessage(`"A"`)))
	clock.Advance(20 * time.Hour)
	require.NoError(t, cache.CacheData(ctx, "k", json.RawMessage(`"B"`)))

	got, ok := cache.GetCachedData("k")
	require.True(t, ok)
	assert.JSONEq(t, `"B"`, string(got))

	// 30h after the first write but only 10h after the second
	clock.Advance(10 * time.Hour)
	got, ok = cache.GetCachedData("k")
	require.True(t, ok)
	assert.JSONEq(t, `"B"`, string(got))

	age, ok := cache.Age("k")
	require.True(t, ok)
	assert.Equal(t, 10*time.Hour, age)
}

func TestCache_TimestampNeverDecreases(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(epoch)
	cache := offline.New(context.Background(), store, offline.WithClock(clock))
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "k", json.RawMessage(`1`)))

	// a second cache with a clock behind the first writes the same key
	behind := offline.New(ctx, store, offline.WithClock(clockwork.NewFakeClockAt(epoch.Add(-time.Minute))))
	require.NoError(t, behind.CacheData(ctx, "k", json.RawMessage(`2`)))

	entries := behind.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, epoch.UnixMilli(), entries[0].Entry.Timestamp)
}

func TestCache_KeyIsolation(t *testing.T) {
	cache, clock := newCache(t, memory.New())
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "a", json.RawMessage(`"first"`)))
	writtenA := cache.Entries()[0].Entry.WrittenAt()

	clock.Advance(time.Hour)
	require.NoError(t, cache.CacheData(ctx, "b", json.RawMessage(`"second"`)))

	got, ok := cache.GetCachedData("a")
	require.True(t, ok)
	assert.JSONEq(t, `"first"`, string(got))

	entries := cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.True(t, writtenA.Equal(entries[0].Entry.WrittenAt()), "writing b leaves a's timestamp alone")
	assert.True(t, epoch.Equal(entries[0].Entry.WrittenAt()))

	age, ok := cache.Age("a")
	require.True(t, ok)
	assert.Equal(t, time.Hour, age)
	age, ok = cache.Age("b")
	require.True(t, ok)
	assert.Zero(t, age)
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, _ := newCache(t, store)
	require.NoError(t, first.CacheData(ctx, "resources", json.RawMessage(`{"water":true}`)))

	second, _ := newCache(t, store)
	got, ok := second.GetCachedData("resources")
	require.True(t, ok)
	assert.JSONEq(t, `{"water":true}`, string(got))
}

func TestCache_NamespaceIsolation(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)

	a := offline.New(ctx, store, offline.WithClock(clock), offline.WithNamespace("ns-a"))
	b := offline.New(ctx, store, offline.WithClock(clock), offline.WithNamespace("ns-b"))

	require.NoError(t, a.CacheData(ctx, "k", json.RawMessage(`"a"`)))

	_, ok := b.GetCachedData("k")
	assert.False(t, ok)
	assert.Equal(t, "ns-b", b.Namespace())
}

func TestCache_CorruptStoreRecovery(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, offline.DefaultNamespace, []byte("not-json")))

	cache, _ := newCache(t, store)

	_, ok := cache.GetCachedData("x")
	assert.False(t, ok)

	require.NoError(t, cache.CacheData(ctx, "x", json.RawMessage(`1`)))

	raw, err := store.Get(ctx, offline.DefaultNamespace)
	require.NoError(t, err)

	var doc offline.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc, 1)
	assert.JSONEq(t, `1`, string(doc["x"].Data))
	assert.Equal(t, epoch.UnixMilli(), doc["x"].Timestamp)
}

func TestCache_UnreadableStorageOnInit(t *testing.T) {
	store := &failingStorage{getErr: errors.New("disk gone")}

	// New never fails; the cache starts empty
	cache, _ := newCache(t, store)
	assert.Empty(t, cache.Entries())

	err := cache.CacheData(context.Background(), "k", json.RawMessage(`1`))
	require.Error(t, err)
	assert.ErrorIs(t, err, offline.ErrStorage)
	assert.Nil(t, store.data, "a failed read must not overwrite the stored document")
}

func TestCache_QuotaErrorLeavesMirrorUnchanged(t *testing.T) {
	store := memory.New().WithQuota(80)
	recorder := newCountingRecorder()
	clock := clockwork.NewFakeClockAt(epoch)
	cache := offline.New(context.Background(), store, offline.WithClock(clock), offline.WithRecorder(recorder))
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "small", json.RawMessage(`1`)))

	big := json.RawMessage(fmt.Sprintf("%q", strings.Repeat("a", 200)))
	err := cache.CacheData(ctx, "big", big)
	require.Error(t, err)
	assert.ErrorIs(t, err, offline.ErrQuotaExceeded)
	assert.ErrorIs(t, err, offline.ErrStorage)

	_, ok := cache.GetCachedData("big")
	assert.False(t, ok)

	got, ok := cache.GetCachedData("small")
	require.True(t, ok)
	assert.JSONEq(t, `1`, string(got))

	assert.Equal(t, 1, recorder.writes[true])
	assert.Equal(t, 1, recorder.writes[false])
	assert.Equal(t, 1, recorder.entries)
}

func TestCache_WriteFailureIsNotRetried(t *testing.T) {
	store := &failingStorage{setErr: errors.New("io error")}
	cache, _ := newCache(t, store)

	err := cache.CacheData(context.Background(), "k", json.RawMessage(`1`))
	require.Error(t, err)
	assert.ErrorIs(t, err, offline.ErrStorage)
	assert.NotErrorIs(t, err, offline.ErrQuotaExceeded)

	_, ok := cache.GetCachedData("k")
	assert.False(t, ok)
}

func TestCache_EncodeFailure(t *testing.T) {
	cache, _ := newCache(t, memory.New())

	err := cache.CacheData(context.Background(), "k", json.RawMessage(`{not valid`))
	require.Error(t, err)
	assert.ErrorIs(t, err, offline.ErrEncode)
}

func TestCache_ConcurrentWritersLoseNothing(t *testing.T) {
	store := memory.New()
	cache, _ := newCache(t, store)
	ctx := context.Background()

	const writers = 20

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("k-%d", id)
			assert.NoError(t, cache.CacheData(ctx, key, json.RawMessage(fmt.Sprint(id))))
		}(i)
	}
	wg.Wait()

	assert.Len(t, cache.Entries(), writers)

	fresh, _ := newCache(t, store)
	assert.Len(t, fresh.Entries(), writers)
}

func TestCache_LookupMetrics(t *testing.T) {
	recorder := newCountingRecorder()
	clock := clockwork.NewFakeClockAt(epoch)
	cache := offline.New(context.Background(), memory.New(), offline.WithClock(clock), offline.WithRecorder(recorder))

	require.NoError(t, cache.CacheData(context.Background(), "k", json.RawMessage(`1`)))

	cache.GetCachedData("k")
	cache.GetCachedData("missing")
	clock.Advance(25 * time.Hour)
	cache.GetCachedData("k")

	assert.Equal(t, map[string]int{"hit": 1, "miss": 1, "expired": 1}, recorder.lookups)
}

func TestCache_Delete(t *testing.T) {
	cache, _ := newCache(t, memory.New())
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "k", json.RawMessage(`1`)))
	require.NoError(t, cache.Delete(ctx, "k"))

	_, ok := cache.GetCachedData("k")
	assert.False(t, ok)

	err := cache.Delete(ctx, "k")
	assert.ErrorIs(t, err, offline.ErrNotFound)
}

func TestCache_Purge(t *testing.T) {
	cache, clock := newCache(t, memory.New())
	ctx := context.Background()

	require.NoError(t, cache.CacheData(ctx, "map/tiles/1", json.RawMessage(`1`)))
	require.NoError(t, cache.CacheData(ctx, "map/tiles/2", json.RawMessage(`2`)))
	require.NoError(t, cache.CacheData(ctx, "chat/history", json.RawMessage(`3`)))

	clock.Advance(30 * time.Hour)
	require.NoError(t, cache.CacheData(ctx, "map/tiles/3", json.RawMessage(`4`)))

	removed, err := cache.Purge(ctx, "map/**")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys := make([]string, 0)
	for _, e := range cache.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"chat/history", "map/tiles/3"}, keys)

	removed, err = cache.Purge(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = cache.Purge(ctx, "[")
	assert.Error(t, err)
}

func TestCache_Reload(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	reader, _ := newCache(t, store)
	writer, _ := newCache(t, store)

	require.NoError(t, writer.CacheData(ctx, "k", json.RawMessage(`"v"`)))

	_, ok := reader.GetCachedData("k")
	require.False(t, ok, "mirror is not refreshed implicitly")

	require.NoError(t, reader.Reload(ctx))
	_, ok = reader.GetCachedData("k")
	assert.True(t, ok)
}

func TestMatchKey(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"", "anything", true},
		{"map/*", "map/tiles", true},
		{"map/*", "map/tiles/1", false},
		{"map/**", "map/tiles/1", true},
		{"chat", "chat/history", false},
		{"[", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, offline.MatchKey(tt.pattern, tt.key))
		})
	}
}
