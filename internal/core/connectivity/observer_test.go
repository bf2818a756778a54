package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	online   bool
	handlers map[int]func(Signal)
	next     int
}

func newFakeSource(online bool) *fakeSource {
	return &fakeSource{online: online, handlers: map[int]func(Signal){}}
}

func (f *fakeSource) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeSource) Subscribe(fn func(Signal)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.handlers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeSource) emit(sig Signal) {
	f.mu.Lock()
	f.online = sig == SignalOnline
	handlers := make([]func(Signal), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(sig)
	}
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) ShowNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func TestObserver_TransitionScenario(t *testing.T) {
	src := newFakeSource(true)
	sink := &noticeRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))

	obs := NewObserver(src, sink, WithClock(clock))
	obs.Start(context.Background())
	defer obs.Stop()

	require.True(t, obs.IsOnline())

	src.emit(SignalOffline)
	assert.False(t, obs.IsOnline())

	src.emit(SignalOffline)
	src.emit(SignalOnline)
	assert.True(t, obs.IsOnline())

	notices := sink.all()
	require.Len(t, notices, 2)

	assert.Equal(t, DefaultOfflineMessage, notices[0].Message)
	assert.Equal(t, 5*time.Second, notices[0].Duration)
	assert.False(t, notices[0].Online)
	assert.Equal(t, clock.Now(), notices[0].At)

	assert.Equal(t, DefaultOnlineMessage, notices[1].Message)
	assert.Equal(t, 3*time.Second, notices[1].Duration)
	assert.True(t, notices[1].Online)
}

func TestObserver_InitialStateFromSource(t *testing.T) {
	src := newFakeSource(false)
	sink := &noticeRecorder{}

	obs := NewObserver(src, sink)
	assert.False(t, obs.IsOnline())

	obs.Start(context.Background())
	defer obs.Stop()

	// duplicate of the initial state
	src.emit(SignalOffline)
	assert.Empty(t, sink.all())
}

func TestObserver_StopUnsubscribes(t *testing.T) {
	src := newFakeSource(true)
	sink := &noticeRecorder{}

	obs := NewObserver(src, sink)
	obs.Start(context.Background())
	obs.Start(context.Background())
	assert.Equal(t, 1, src.subscribers())

	obs.Stop()
	assert.Equal(t, 0, src.subscribers())

	src.emit(SignalOffline)
	assert.Empty(t, sink.all())
	assert.True(t, obs.IsOnline(), "state is not updated after Stop")

	// stopping twice is harmless
	obs.Stop()
}

func TestObserver_ContextCancelStops(t *testing.T) {
	src := newFakeSource(true)
	obs := NewObserver(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	obs.Start(ctx)
	require.Equal(t, 1, src.subscribers())

	cancel()
	assert.Eventually(t, func() bool { return src.subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestObserver_RestartIgnoresEarlierContext(t *testing.T) {
	src := newFakeSource(true)
	sink := &noticeRecorder{}
	obs := NewObserver(src, sink)

	first, cancelFirst := context.WithCancel(context.Background())
	obs.Start(first)
	obs.Stop()

	obs.Start(context.Background())
	require.Equal(t, 1, src.subscribers())

	cancelFirst()
	assert.Never(t, func() bool { return src.subscribers() == 0 }, 100*time.Millisecond, 5*time.Millisecond)

	src.emit(SignalOffline)
	require.Len(t, sink.all(), 1)
	assert.False(t, obs.IsOnline())
}

func TestObserver_CustomMessages(t *testing.T) {
	src := newFakeSource(true)
	sink := &noticeRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 14, 5, 0, 0, time.UTC))

	obs := NewObserver(src, sink,
		WithClock(clock),
		WithMessages("Offline since {{ .At }}", "{{ .Missing }}"),
	)
	obs.Start(context.Background())
	defer obs.Stop()

	src.emit(SignalOffline)
	src.emit(SignalOnline)

	notices := sink.all()
	require.Len(t, notices, 2)
	assert.Equal(t, "Offline since 14:05", notices[0].Message)
	assert.Equal(t, DefaultOnlineMessage, notices[1].Message, "broken template falls back to default")
}

func TestObserver_OnChangeAndPanics(t *testing.T) {
	src := newFakeSource(true)
	obs := NewObserver(src, SinkFunc(func(Notice) { panic("sink exploded") }))
	obs.Start(context.Background())
	defer obs.Stop()

	var got []bool
	cancel := obs.OnChange(func(online bool) { got = append(got, online) })
	obs.OnChange(func(bool) { panic("listener exploded") })

	src.emit(SignalOffline)
	cancel()
	src.emit(SignalOnline)

	assert.Equal(t, []bool{false}, got)
	assert.True(t, obs.IsOnline())
}

func TestObserver_IgnoresUnknownSignal(t *testing.T) {
	src := newFakeSource(true)
	sink := &noticeRecorder{}
	obs := NewObserver(src, sink)
	obs.Start(context.Background())
	defer obs.Stop()

	src.emit(Signal("flaky"))
	assert.True(t, obs.IsOnline())
	assert.Empty(t, sink.all())
}
