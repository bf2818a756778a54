package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/store/memory"
)

func TestConsent(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c := NewConsent(kv)

	assert.Equal(t, PermissionDefault, c.Load(ctx))

	require.NoError(t, c.Save(ctx, PermissionGranted))
	assert.Equal(t, PermissionGranted, NewConsent(kv).Load(ctx))

	require.NoError(t, kv.Set(ctx, ConsentKey, []byte("maybe")))
	assert.Equal(t, PermissionDefault, c.Load(ctx))

	var none *Consent
	assert.Equal(t, PermissionDefault, none.Load(ctx))
	assert.NoError(t, none.Save(ctx, PermissionDenied))
}

func TestConsent_Reset(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c := NewConsent(kv)

	require.NoError(t, c.Reset(ctx), "nothing stored yet")

	require.NoError(t, c.Save(ctx, PermissionDenied))
	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, PermissionDefault, c.Load(ctx))

	var none *Consent
	assert.NoError(t, none.Reset(ctx))
}
