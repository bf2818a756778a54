// Package connectivity tracks whether the host is online and turns state
// transitions into short-lived user notices.
package connectivity

import "time"

// Signal is a connectivity event delivered by a Source.
type Signal string

const (
	SignalOnline  Signal = "online"
	SignalOffline Signal = "offline"
)

const (
	// OfflineNoticeDuration is how long the offline notice stays visible.
	OfflineNoticeDuration = 5 * time.Second
	// OnlineNoticeDuration is how long the back-online notice stays visible.
	OnlineNoticeDuration = 3 * time.Second

	DefaultOfflineMessage = "Offline mode - cached data available"
	DefaultOnlineMessage  = "Back online"
)

// Source reports the current connectivity status and delivers signals when
// it changes. The returned func removes the subscription.
type Source interface {
	Online() bool
	Subscribe(fn func(Signal)) (unsubscribe func())
}

// Notice is a transient message shown to the user after a transition.
type Notice struct {
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	Online   bool          `json:"online"`
	At       time.Time     `json:"at"`
}

// Sink displays notices.
type Sink interface {
	ShowNotice(n Notice)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Notice)

// ShowNotice calls f(n).
func (f SinkFunc) ShowNotice(n Notice) { f(n) }

// Recorder receives connectivity state for metrics.
type Recorder interface {
	ConnectivityOnline(online bool)
	ConnectivityTransition(online bool)
}

type nopRecorder struct{}

func (nopRecorder) ConnectivityOnline(bool)     {}
func (nopRecorder) ConnectivityTransition(bool) {}
