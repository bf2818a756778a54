package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/offline"
)

func TestKVStore_SetAndGet(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "foo", []byte(`{"bar":1}`)))

	got, err := store.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, `{"bar":1}`, string(got))
}

func TestKVStore_GetNotFound(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json"))

	_, err := store.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, offline.ErrNotFound)
}

func TestKVStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.json")
	ctx := context.Background()

	require.NoError(t, NewKVStore(path).Set(ctx, "k", []byte("v")))

	got, err := NewKVStore(path).Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestKVStore_Delete(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, offline.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "k"), offline.ErrNotFound)
}

func TestKVStore_RejectsNonUTF8(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json"))
	ctx := context.Background()

	err := store.Set(ctx, "bin", []byte{0xff, 0xfe, 'a'})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = store.Get(ctx, "bin")
	assert.ErrorIs(t, err, offline.ErrNotFound)

	require.NoError(t, store.Set(ctx, "text", []byte("Überschwemmung ⚠")))
	got, err := store.Get(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, "Überschwemmung ⚠", string(got))
}

func TestKVStore_Quota(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json")).WithQuota(8)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1234")))

	err := store.Set(ctx, "b", []byte("123456"))
	require.ErrorIs(t, err, offline.ErrQuotaExceeded)

	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, offline.ErrNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("12345678")))
}

func TestKVStore_ConcurrentAccess(t *testing.T) {
	store := NewKVStore(filepath.Join(t.TempDir(), "kv.json"))
	ctx := context.Background()

	const goroutines = 10
	const iterations = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				if err := store.Set(ctx, key, []byte("value")); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if _, err := store.Get(ctx, key); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()

	file, err := store.load()
	require.NoError(t, err)
	assert.Len(t, file.Entries, goroutines*iterations)
}

func TestKVStore_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{invalid json"), 0o644))

	store := NewKVStore(path)
	ctx := context.Background()

	_, err := store.Get(ctx, "any")
	assert.ErrorIs(t, err, offline.ErrNotFound)

	_, err = store.load()
	assert.ErrorIs(t, err, errCorrupt)

	// a write sets the broken file aside and starts over
	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	aside, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{invalid json", string(aside))
}

func TestKVStore_BacksOfflineCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	ctx := context.Background()

	cache := offline.New(ctx, NewKVStore(path))
	require.NoError(t, cache.CacheData(ctx, "alerts", []byte(`["flood warning"]`)))

	reopened := offline.New(ctx, NewKVStore(path))
	got, ok := reopened.GetCachedData("alerts")
	require.True(t, ok)
	assert.JSONEq(t, `["flood warning"]`, string(got))
}
