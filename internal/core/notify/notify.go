// Package notify gates user notifications behind a tri-state permission and
// dismisses every shown notification after a fixed delay.
package notify

import (
	"context"
	"time"
)

// Permission is the user's decision about notifications.
type Permission string

const (
	PermissionDefault Permission = "default" // not decided yet
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// AutoDismissAfter is how long a shown notification stays before it is
// closed.
const AutoDismissAfter = 5 * time.Second

// UnsupportedMessage is shown when permission is requested on a platform
// without notification support.
const UnsupportedMessage = "Notifications are not supported on this device"

// Outcome of a dispatch attempt.
const (
	OutcomeShown      = "shown"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)

// Options carries presentation details for a notification. Extra holds
// arbitrary platform fields and is passed through untouched.
type Options struct {
	Body  string         `json:"body,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Notification is a single dispatched notification.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Options   Options   `json:"options"`
	CreatedAt time.Time `json:"created_at"`
}

// Handle closes a notification that is currently shown.
type Handle interface {
	Close() error
}

// HandleFunc adapts a function to a Handle.
type HandleFunc func() error

// Close calls f.
func (f HandleFunc) Close() error { return f() }

// Platform is the host notification facility.
type Platform interface {
	// Supported reports whether the host can show notifications at all.
	Supported() bool
	// Permission returns the current decision without prompting.
	Permission() Permission
	// RequestPermission prompts the user and blocks until they decide.
	RequestPermission(ctx context.Context) (Permission, error)
	// Show displays n and returns a handle that dismisses it.
	Show(ctx context.Context, n Notification) (Handle, error)
}

// Delivery is a dispatch attempt as written to the journal.
type Delivery struct {
	Notification Notification `json:"notification"`
	Outcome      string       `json:"outcome"`
	Reason       string       `json:"reason,omitempty"`
}

// Journal keeps a history of dispatch attempts.
type Journal interface {
	Record(d Delivery) error
}

// Recorder receives dispatch outcomes for metrics.
type Recorder interface {
	Notification(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Notification(string) {}

// Unsupported is a Platform for hosts that cannot show notifications.
type Unsupported struct{}

var _ Platform = Unsupported{}

func (Unsupported) Supported() bool        { return false }
func (Unsupported) Permission() Permission { return PermissionDenied }

func (Unsupported) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, nil
}

func (Unsupported) Show(context.Context, Notification) (Handle, error) {
	return HandleFunc(func() error { return nil }), nil
}
