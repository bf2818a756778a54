package network

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/shelter/internal/core/connectivity"
)

type signalLog struct {
	mu      sync.Mutex
	signals []connectivity.Signal
}

func (l *signalLog) add(s connectivity.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, s)
}

func (l *signalLog) all() []connectivity.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]connectivity.Signal(nil), l.signals...)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestManual(t *testing.T) {
	m := NewManual(true)
	log := &signalLog{}
	unsubscribe := m.Subscribe(log.add)

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)
	unsubscribe()
	m.Set(false)

	assert.Equal(t, []connectivity.Signal{connectivity.SignalOffline, connectivity.SignalOnline}, log.all())
	assert.False(t, m.Online())
}

func TestProber_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p, err := NewProber(ProberConfig{
		Mode:    ModeTCP,
		Targets: []string{closedAddr(t), ln.Addr().String()},
		Timeout: time.Second,
	})
	require.NoError(t, err)

	assert.True(t, p.Check(context.Background()), "one reachable target is enough")
}

func TestProber_TCPUnreachable(t *testing.T) {
	p, err := NewProber(ProberConfig{
		Mode:    ModeTCP,
		Targets: []string{closedAddr(t)},
		Timeout: time.Second,
	})
	require.NoError(t, err)

	log := &signalLog{}
	p.Subscribe(log.add)

	assert.False(t, p.Check(context.Background()))
	assert.False(t, p.Online())
	assert.Equal(t, []connectivity.Signal{connectivity.SignalOffline}, log.all())
}

func TestProber_HTTP(t *testing.T) {
	healthy := true
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewProber(ProberConfig{Mode: ModeHTTP, Targets: []string{srv.URL}}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	assert.True(t, p.Check(context.Background()))

	mu.Lock()
	healthy = false
	mu.Unlock()

	assert.False(t, p.Check(context.Background()))
}

func TestProber_RunTicks(t *testing.T) {
	addr := closedAddr(t)
	clock := clockwork.NewFakeClock()

	p, err := NewProber(ProberConfig{
		Mode:     ModeTCP,
		Targets:  []string{addr},
		Interval: 10 * time.Second,
		Timeout:  time.Second,
	}, WithClock(clock))
	require.NoError(t, err)

	log := &signalLog{}
	p.Subscribe(log.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// the initial check runs before the first tick
	require.Eventually(t, func() bool { return !p.Online() }, 2*time.Second, 5*time.Millisecond)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		t.Skipf("port %s was reused: %v", addr, err)
	}
	defer ln.Close() //nolint:errcheck

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)

	require.Eventually(t, p.Online, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []connectivity.Signal{connectivity.SignalOffline, connectivity.SignalOnline}, log.all())
}

func TestNewProber_Validation(t *testing.T) {
	_, err := NewProber(ProberConfig{Mode: ModeTCP})
	assert.Error(t, err)

	_, err = NewProber(ProberConfig{Mode: "icmp", Targets: []string{"x"}})
	assert.Error(t, err)
}

func TestStatus_ConcurrentSetsDeliverInOrder(t *testing.T) {
	s := newStatus(true)
	log := &signalLog{}
	s.Subscribe(log.add)

	var wg sync.WaitGroup
	for _, online := range []bool{false, true} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				s.set(online)
			}
		}()
	}
	wg.Wait()

	signals := log.all()
	require.NotEmpty(t, signals)
	for i := 1; i < len(signals); i++ {
		require.NotEqual(t, signals[i-1], signals[i], "signal %d repeats the previous state", i)
	}

	last := signals[len(signals)-1]
	assert.Equal(t, s.Online(), last == connectivity.SignalOnline)
}
