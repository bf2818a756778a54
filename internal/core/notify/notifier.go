package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/pkg/randid"
)

// Notifier dispatches notifications through a Platform once the user has
// granted permission. It never returns errors to callers: platform failures
// are logged and reported as "not shown".
type Notifier struct {
	platform  Platform
	clock     clockwork.Clock
	log       zerolog.Logger
	recorder  Recorder
	journal   Journal
	explain   func(msg string)
	defaults  Options
	supported bool

	mu         sync.Mutex
	permission Permission
	pending    chan struct{}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock sets the clock that drives auto-dismissal.
func WithClock(c clockwork.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(n *Notifier) { n.recorder = r }
}

// WithJournal records every dispatch attempt.
func WithJournal(j Journal) Option {
	return func(n *Notifier) { n.journal = j }
}

// WithExplainer sets the function used to show the user why a permission
// request could not be made.
func WithExplainer(fn func(msg string)) Option {
	return func(n *Notifier) { n.explain = fn }
}

// WithDefaults sets the icon and badge used when a dispatch leaves them
// empty.
func WithDefaults(icon, badge string) Option {
	return func(n *Notifier) {
		n.defaults.Icon = icon
		n.defaults.Badge = badge
	}
}

// New creates a Notifier and reads the platform's support and current
// permission.
func New(platform Platform, opts ...Option) *Notifier {
	n := &Notifier{
		platform:   platform,
		clock:      clockwork.NewRealClock(),
		log:        zerolog.Nop(),
		recorder:   nopRecorder{},
		explain:    func(string) {},
		permission: PermissionDefault,
	}
	for _, opt := range opts {
		opt(n)
	}

	_ = n.guard("support check", func() error {
		n.supported = platform.Supported()
		return nil
	})
	if !n.supported {
		n.log.Debug().Msg("notifications unsupported on this platform")
		return n
	}

	_ = n.guard("permission query", func() error {
		n.permission = platform.Permission()
		return nil
	})
	return n
}

// Supported reports whether the platform can show notifications.
func (n *Notifier) Supported() bool {
	return n.supported
}

// Permission returns the current permission state.
func (n *Notifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

// Pending reports whether a permission request is in flight.
func (n *Notifier) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending != nil
}

// RequestPermission asks the user for permission and reports whether it was
// granted. An existing decision is returned without prompting again.
// Concurrent calls share one prompt. ctx bounds only how long the caller
// waits; the user's answer is recorded whenever it arrives.
func (n *Notifier) RequestPermission(ctx context.Context) bool {
	if !n.supported {
		n.explain(UnsupportedMessage)
		return false
	}

	n.mu.Lock()
	switch n.permission {
	case PermissionGranted:
		n.mu.Unlock()
		return true
	case PermissionDenied:
		n.mu.Unlock()
		return false
	}

	wait := n.pending
	if wait == nil {
		wait = make(chan struct{})
		n.pending = wait
		go n.resolve(wait)
	}
	n.mu.Unlock()

	select {
	case <-wait:
		return n.Permission() == PermissionGranted
	case <-ctx.Done():
		return false
	}
}

func (n *Notifier) resolve(done chan struct{}) {
	var result Permission
	err := n.guard("permission request", func() error {
		p, err := n.platform.RequestPermission(context.Background())
		result = p
		return err
	})

	n.mu.Lock()
	if err == nil && result != "" {
		n.permission = result
	}
	n.pending = nil
	n.mu.Unlock()
	close(done)

	if err != nil {
		n.log.Warn().Err(err).Msg("permission request failed, treating as not granted")
		return
	}
	n.log.Info().Str("permission", string(result)).Msg("notification permission resolved")
}

// SendNotification shows a notification if permission is granted and no
// request is pending; otherwise it does nothing. It reports whether the
// notification was shown. Shown notifications close after AutoDismissAfter.
func (n *Notifier) SendNotification(ctx context.Context, title string, opts Options) bool {
	if !n.supported {
		return false
	}

	note := Notification{
		ID:        randid.Prefixed("ntf", 10),
		Title:     title,
		Options:   n.withDefaults(opts),
		CreatedAt: n.clock.Now(),
	}

	n.mu.Lock()
	permission, pending := n.permission, n.pending != nil
	n.mu.Unlock()

	if pending || permission != PermissionGranted {
		reason := "permission " + string(permission)
		if pending {
			reason = "permission request pending"
		}
		n.finish(note, OutcomeSuppressed, reason)
		return false
	}

	var handle Handle
	err := n.guard("show", func() error {
		h, err := n.platform.Show(ctx, note)
		handle = h
		return err
	})
	if err != nil {
		n.log.Warn().Err(err).Str("title", title).Msg("notification dispatch failed")
		n.finish(note, OutcomeFailed, err.Error())
		return false
	}

	if handle != nil {
		n.clock.AfterFunc(AutoDismissAfter, func() {
			if err := n.guard("dismiss", handle.Close); err != nil {
				n.log.Debug().Err(err).Str("id", note.ID).Msg("dismiss failed")
			}
		})
	}

	n.finish(note, OutcomeShown, "")
	return true
}

func (n *Notifier) withDefaults(opts Options) Options {
	if opts.Icon == "" {
		opts.Icon = n.defaults.Icon
	}
	if opts.Badge == "" {
		opts.Badge = n.defaults.Badge
	}
	return opts
}

func (n *Notifier) finish(note Notification, outcome, reason string) {
	n.recorder.Notification(outcome)
	if n.journal == nil {
		return
	}
	if err := n.journal.Record(Delivery{Notification: note, Outcome: outcome, Reason: reason}); err != nil {
		n.log.Warn().Err(err).Msg("write notification journal")
	}
}

// guard runs fn and converts a panic into an error.
func (n *Notifier) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: platform panic: %v", op, r)
			n.log.Error().Err(err).Msg("notification platform panicked")
		}
	}()
	return fn()
}
