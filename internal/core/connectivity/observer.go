package connectivity

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/pkg/tmpl"
)

// Observer owns the online/offline state. It is updated only by signals from
// its Source between Start and Stop, and emits one notice per real
// transition; repeated signals in the same state are ignored.
type Observer struct {
	src      Source
	sink     Sink
	clock    clockwork.Clock
	log      zerolog.Logger
	recorder Recorder

	offlineMessage string
	onlineMessage  string

	mu          sync.Mutex
	online      bool
	started     bool
	unsubscribe func()
	stopOnDone  func() bool
	listeners   map[int]func(bool)
	nextID      int
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithClock sets the clock used to stamp notices.
func WithClock(c clockwork.Clock) ObserverOption {
	return func(o *Observer) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) ObserverOption {
	return func(o *Observer) { o.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ObserverOption {
	return func(o *Observer) { o.recorder = r }
}

// WithMessages overrides the notice texts. Both are Go templates rendered
// with NoticeData; empty strings keep the defaults.
func WithMessages(offline, online string) ObserverOption {
	return func(o *Observer) {
		if offline != "" {
			o.offlineMessage = offline
		}
		if online != "" {
			o.onlineMessage = online
		}
	}
}

// NoticeData is the template data for notice messages.
type NoticeData struct {
	Online bool
	At     string
}

// NewObserver creates an Observer reading from src and showing notices on
// sink. The initial state is taken from src.
func NewObserver(src Source, sink Sink, opts ...ObserverOption) *Observer {
	o := &Observer{
		src:            src,
		sink:           sink,
		clock:          clockwork.NewRealClock(),
		log:            zerolog.Nop(),
		recorder:       nopRecorder{},
		offlineMessage: DefaultOfflineMessage,
		onlineMessage:  DefaultOnlineMessage,
		listeners:      make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = SinkFunc(func(Notice) {})
	}
	o.online = src.Online()
	return o
}

// Start subscribes to the source. The state is re-read from the source so
// it is current as of the subscription. Cancelling ctx stops the observer.
// Calling Start on a started observer does nothing.
func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.online = o.src.Online()
	online := o.online
	o.mu.Unlock()

	unsubscribe := o.src.Subscribe(o.handle)

	o.mu.Lock()
	if !o.started {
		// stopped while subscribing
		o.mu.Unlock()
		unsubscribe()
		return
	}
	o.unsubscribe = unsubscribe
	o.stopOnDone = context.AfterFunc(ctx, o.Stop)
	o.mu.Unlock()

	o.recorder.ConnectivityOnline(online)
	o.log.Debug().Bool("online", online).Msg("connectivity observer started")
}

// Stop unsubscribes from the source. No notices are emitted afterwards.
func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	stopOnDone := o.stopOnDone
	o.stopOnDone = nil
	o.mu.Unlock()

	if stopOnDone != nil {
		stopOnDone()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	o.log.Debug().Msg("connectivity observer stopped")
}

// IsOnline reports the current state.
func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// OnChange registers fn to be called with the new state after every
// transition. The returned func removes it.
func (o *Observer) OnChange(fn func(online bool)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

func (o *Observer) handle(sig Signal) {
	var next bool
	switch sig {
	case SignalOnline:
		next = true
	case SignalOffline:
		next = false
	default:
		o.log.Warn().Str("signal", string(sig)).Msg("ignoring unknown connectivity signal")
		return
	}

	o.mu.Lock()
	if !o.started || o.online == next {
		o.mu.Unlock()
		return
	}
	o.online = next
	listeners := make([]func(bool), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	o.recorder.ConnectivityOnline(next)
	o.recorder.ConnectivityTransition(next)
	o.log.Info().Bool("online", next).Msg("connectivity changed")

	notice := o.notice(next)
	o.safely("sink", func() { o.sink.ShowNotice(notice) })

	for _, fn := range listeners {
		o.safely("listener", func() { fn(next) })
	}
}

func (o *Observer) notice(online bool) Notice {
	n := Notice{Online: online, At: o.clock.Now()}

	text, fallback := o.offlineMessage, DefaultOfflineMessage
	n.Duration = OfflineNoticeDuration
	if online {
		text, fallback = o.onlineMessage, DefaultOnlineMessage
		n.Duration = OnlineNoticeDuration
	}

	msg, err := tmpl.Render(text, NoticeData{Online: online, At: n.At.Format("15:04")})
	if err != nil {
		o.log.Warn().Err(err).Msg("notice template failed, using default message")
		msg = fallback
	}
	n.Message = msg
	return n
}

// safely runs fn and swallows a panic so a broken consumer cannot take the
// observer down.
func (o *Observer) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("consumer", what).Msg("connectivity consumer panicked")
		}
	}()
	fn()
}
