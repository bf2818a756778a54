package terminal

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/store/memory"
)

func newPlatform(answer bool, promptErr error) (*Platform, *bytes.Buffer, *notify.Consent) {
	var buf bytes.Buffer
	consent := notify.NewConsent(memory.New())
	p := New(&buf, consent, zerolog.Nop())
	p.isTTY = func() bool { return true }
	p.prompt = func(context.Context) (bool, error) { return answer, promptErr }
	return p, &buf, consent
}

func TestPlatform_RequestPermission(t *testing.T) {
	ctx := context.Background()

	p, _, consent := newPlatform(true, nil)
	got, err := p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionGranted, got)
	assert.Equal(t, notify.PermissionGranted, consent.Load(ctx))

	p, _, _ = newPlatform(false, nil)
	got, err = p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionDenied, got)
	assert.Equal(t, notify.PermissionDenied, p.Permission())

	p, _, consent = newPlatform(false, huh.ErrUserAborted)
	got, err = p.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionDefault, got)
	assert.Equal(t, notify.PermissionDefault, consent.Load(ctx))

	p, _, _ = newPlatform(false, errors.New("no tty"))
	_, err = p.RequestPermission(ctx)
	assert.Error(t, err)
}

func TestPlatform_ShowToast(t *testing.T) {
	p, buf, _ := newPlatform(true, nil)
	assert.True(t, p.Supported())

	h, err := p.Show(context.Background(), notify.Notification{
		ID:      "ntf_1",
		Title:   "Shelter open",
		Options: notify.Options{Body: "Central Gym has space"},
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Shelter open")
	assert.Contains(t, buf.String(), "Central Gym has space")
	assert.Equal(t, 1, p.Active())

	require.NoError(t, h.Close())
	assert.Equal(t, 0, p.Active())
}

func TestPlatform_WithNotifier(t *testing.T) {
	p, buf, _ := newPlatform(true, nil)
	n := notify.New(p)

	assert.False(t, n.SendNotification(context.Background(), "before", notify.Options{}))
	require.True(t, n.RequestPermission(context.Background()))
	require.True(t, n.SendNotification(context.Background(), "after", notify.Options{}))

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
