package offline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/offline"
	"github.com/hay-kot/shelter/internal/store/memory"
)

type shelterInfo struct {
	Name     string   `json:"name"`
	Capacity int      `json:"capacity"`
	Supplies []string `json:"supplies"`
}

func TestTyped_RoundTrip(t *testing.T) {
	cache, _ := newCache(t, memory.New())
	want := shelterInfo{Name: "North Gym", Capacity: 120, Supplies: []string{"water", "cots"}}

	require.NoError(t, offline.Put(context.Background(), cache, "shelters/north", want))

	got, ok, err := offline.Get[shelterInfo](cache, "shelters/north")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	raw, ok := cache.GetCachedData("shelters/north")
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"North Gym","capacity":120,"supplies":["water","cots"]}`, string(raw))
}

func TestTyped_Absent(t *testing.T) {
	cache, clock := newCache(t, memory.New())

	got, ok, err := offline.Get[shelterInfo](cache, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, got)

	require.NoError(t, offline.Put(context.Background(), cache, "old", shelterInfo{Name: "x"}))
	clock.Advance(offline.FreshnessWindow)

	_, ok, err = offline.Get[shelterInfo](cache, "old")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries read as absent")
}

func TestTyped_DecodeMismatch(t *testing.T) {
	cache, _ := newCache(t, memory.New())
	require.NoError(t, cache.CacheData(context.Background(), "shelters/north", json.RawMessage(`["not","an","object"]`)))

	_, ok, err := offline.Get[shelterInfo](cache, "shelters/north")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "shelters/north")
}

func TestTyped_EncodeFailure(t *testing.T) {
	cache, _ := newCache(t, memory.New())

	err := offline.Put(context.Background(), cache, "bad", map[string]any{"ch": make(chan int)})
	require.ErrorIs(t, err, offline.ErrEncode)

	assert.Empty(t, cache.Entries(), "nothing written on encode failure")
}
