package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	supported  bool
	permission Permission

	// answer is read by RequestPermission; nil answers immediately
	answer     chan Permission
	requestErr error
	showErr    error
	panicOn    string

	mu       sync.Mutex
	requests int
	shown    []Notification
	closed   atomic.Int32
}

func (f *fakePlatform) Supported() bool {
	if f.panicOn == "supported" {
		panic("boom")
	}
	return f.supported
}

func (f *fakePlatform) Permission() Permission { return f.permission }

func (f *fakePlatform) RequestPermission(ctx context.Context) (Permission, error) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	if f.panicOn == "request" {
		panic("boom")
	}
	if f.requestErr != nil {
		return "", f.requestErr
	}
	if f.answer == nil {
		return PermissionGranted, nil
	}
	return <-f.answer, nil
}

func (f *fakePlatform) Show(_ context.Context, n Notification) (Handle, error) {
	if f.panicOn == "show" {
		panic("boom")
	}
	if f.showErr != nil {
		return nil, f.showErr
	}
	f.mu.Lock()
	f.shown = append(f.shown, n)
	f.mu.Unlock()
	return HandleFunc(func() error {
		f.closed.Add(1)
		return nil
	}), nil
}

func (f *fakePlatform) shownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

func (f *fakePlatform) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

type memJournal struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (j *memJournal) Record(d Delivery) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveries = append(j.deliveries, d)
	return nil
}

func TestNotifier_PermissionDeniedScenario(t *testing.T) {
	platform := &fakePlatform{supported: true, permission: PermissionDefault, answer: make(chan Permission, 1)}
	platform.answer <- PermissionDenied
	journal := &memJournal{}

	n := New(platform, WithJournal(journal))
	require.Equal(t, PermissionDefault, n.Permission())

	assert.False(t, n.RequestPermission(context.Background()))
	assert.Equal(t, PermissionDenied, n.Permission())

	assert.False(t, n.SendNotification(context.Background(), "Flood warning", Options{}))
	assert.Equal(t, 0, platform.shownCount())

	require.Len(t, journal.deliveries, 1)
	assert.Equal(t, OutcomeSuppressed, journal.deliveries[0].Outcome)

	// a denied decision is not re-prompted
	assert.False(t, n.RequestPermission(context.Background()))
	assert.Equal(t, 1, platform.requestCount())
}

func TestNotifier_GrantedShowsAndAutoDismisses(t *testing.T) {
	platform := &fakePlatform{supported: true, permission: PermissionGranted}
	clock := clockwork.NewFakeClock()

	n := New(platform, WithClock(clock), WithDefaults("/icons/shelter.png", "/icons/badge.png"))

	assert.True(t, n.RequestPermission(context.Background()))
	assert.Equal(t, 0, platform.requestCount(), "already granted, no prompt")

	ok := n.SendNotification(context.Background(), "Shelter open", Options{
		Body:  "Central Gym has space",
		Extra: map[string]any{"url": "/shelters/1"},
	})
	require.True(t, ok)
	require.Equal(t, 1, platform.shownCount())

	shown := platform.shown[0]
	assert.Equal(t, "Shelter open", shown.Title)
	assert.Equal(t, "/icons/shelter.png", shown.Options.Icon)
	assert.Equal(t, "/icons/badge.png", shown.Options.Badge)
	assert.Equal(t, "/shelters/1", shown.Options.Extra["url"])
	assert.NotEmpty(t, shown.ID)

	clock.Advance(AutoDismissAfter - time.Millisecond)
	assert.Equal(t, int32(0), platform.closed.Load())

	clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return platform.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNotifier_PendingRequestFailsClosed(t *testing.T) {
	platform := &fakePlatform{supported: true, permission: PermissionDefault, answer: make(chan Permission)}
	n := New(platform)

	result := make(chan bool, 2)
	go func() { result <- n.RequestPermission(context.Background()) }()
	go func() { result <- n.RequestPermission(context.Background()) }()

	require.Eventually(t, n.Pending, time.Second, 5*time.Millisecond)

	assert.False(t, n.SendNotification(context.Background(), "early", Options{}))
	assert.Equal(t, 0, platform.shownCount())

	platform.answer <- PermissionGranted

	assert.True(t, <-result)
	assert.True(t, <-result)
	assert.Equal(t, 1, platform.requestCount(), "concurrent requests share one prompt")
	assert.False(t, n.Pending())

	assert.True(t, n.SendNotification(context.Background(), "later", Options{}))
}

func TestNotifier_ContextBoundsWaitOnly(t *testing.T) {
	platform := &fakePlatform{supported: true, permission: PermissionDefault, answer: make(chan Permission)}
	n := New(platform)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, n.RequestPermission(ctx))

	require.Eventually(t, n.Pending, time.Second, 5*time.Millisecond)
	platform.answer <- PermissionGranted

	require.Eventually(t, func() bool { return n.Permission() == PermissionGranted }, time.Second, 5*time.Millisecond)
}

func TestNotifier_PlatformErrorsAreNotGranted(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		platform := &fakePlatform{supported: true, permission: PermissionDefault, requestErr: errors.New("security error")}
		n := New(platform)

		assert.False(t, n.RequestPermission(context.Background()))
		assert.Equal(t, PermissionDefault, n.Permission())
	})

	t.Run("panic", func(t *testing.T) {
		platform := &fakePlatform{supported: true, permission: PermissionDefault, panicOn: "request"}
		n := New(platform)

		assert.False(t, n.RequestPermission(context.Background()))
		assert.False(t, n.Pending())
	})
}

func TestNotifier_ShowFailure(t *testing.T) {
	journal := &memJournal{}
	platform := &fakePlatform{supported: true, permission: PermissionGranted, showErr: errors.New("dbus down")}
	n := New(platform, WithJournal(journal))

	assert.False(t, n.SendNotification(context.Background(), "x", Options{}))
	require.Len(t, journal.deliveries, 1)
	assert.Equal(t, OutcomeFailed, journal.deliveries[0].Outcome)
	assert.Equal(t, "dbus down", journal.deliveries[0].Reason)

	platform.showErr = nil
	platform.panicOn = "show"
	assert.False(t, n.SendNotification(context.Background(), "x", Options{}))
}

func TestNotifier_Unsupported(t *testing.T) {
	var explained []string
	n := New(Unsupported{}, WithExplainer(func(msg string) { explained = append(explained, msg) }))

	assert.False(t, n.Supported())
	assert.False(t, n.RequestPermission(context.Background()))
	assert.Equal(t, []string{UnsupportedMessage}, explained)

	assert.False(t, n.SendNotification(context.Background(), "x", Options{}))
	assert.Len(t, explained, 1, "dispatch stays silent")
}

func TestNotifier_SupportCheckPanics(t *testing.T) {
	n := New(&fakePlatform{panicOn: "supported"})
	assert.False(t, n.Supported())
	assert.False(t, n.SendNotification(context.Background(), "x", Options{}))
}
