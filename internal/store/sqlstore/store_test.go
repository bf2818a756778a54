package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/offline"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "cache.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, offline.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`)))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, offline.ErrNotFound)
}

func TestStore_Status(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	written := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return written }

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Rows)

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))

	status, err = s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, SQLite, status.Backend)
	assert.Equal(t, 2, status.Rows)
	assert.True(t, written.Equal(status.LastUpdated))
}

func TestStore_BacksOfflineCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := Open(ctx, SQLite, path, "")
	require.NoError(t, err)

	cache := offline.New(ctx, s)
	require.NoError(t, cache.CacheData(ctx, "shelters", []byte(`[{"name":"North High"}]`)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, SQLite, path, "")
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	got, ok := offline.New(ctx, s).GetCachedData("shelters")
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"North High"}]`, string(got))
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "x.db"), "bad-name;")
	assert.ErrorContains(t, err, "invalid table name")

	_, err = Open(ctx, SQLite, "", "")
	assert.Error(t, err)

	_, err = Open(ctx, Backend("oracle"), "dsn", "")
	assert.ErrorContains(t, err, "unsupported sql backend")

	_, err = Open(ctx, MySQL, "not a dsn", "")
	assert.ErrorContains(t, err, "invalid mysql dsn")
}

func TestQueries(t *testing.T) {
	pg := &Store{table: "kv", backend: Postgres}
	assert.Equal(t, "$1", pg.placeholder(1))
	assert.Contains(t, pg.upsertQuery(), "ON CONFLICT (kv_key)")

	my := &Store{table: "kv", backend: MySQL}
	assert.Equal(t, "?", my.placeholder(1))
	assert.Contains(t, my.upsertQuery(), "ON DUPLICATE KEY UPDATE")
	assert.Equal(t, "`kv`", quoteTableName("kv", MySQL))

	assert.Contains(t, createTableQuery("kv", Postgres), "BYTEA")
}
