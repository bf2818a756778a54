// Package desktop shows notifications through the freedesktop notification
// service using notify-send, and closes them over D-Bus with gdbus.
package desktop

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/pkg/executil"
)

const (
	notifySend = "notify-send"
	gdbus      = "gdbus"
	appName    = "shelter"
)

// Platform implements notify.Platform for Linux desktops.
type Platform struct {
	exec    executil.Executor
	consent *notify.Consent
	log     zerolog.Logger
	getenv  func(string) string
}

var _ notify.Platform = (*Platform)(nil)

// New creates a desktop platform. consent may be nil, in which case the
// decision is kept for the lifetime of the process only.
func New(exec executil.Executor, consent *notify.Consent, log zerolog.Logger) *Platform {
	return &Platform{exec: exec, consent: consent, log: log, getenv: os.Getenv}
}

// Supported reports whether notify-send is installed and a graphical session
// is available.
func (p *Platform) Supported() bool {
	if _, err := p.exec.LookPath(notifySend); err != nil {
		return false
	}
	return p.getenv("DISPLAY") != "" || p.getenv("WAYLAND_DISPLAY") != ""
}

// Permission returns the stored decision.
func (p *Platform) Permission() notify.Permission {
	return p.consent.Load(context.Background())
}

// RequestPermission shows an actionable notification and waits for the user
// to pick Allow or Deny. Dismissing it leaves the decision open.
func (p *Platform) RequestPermission(ctx context.Context) (notify.Permission, error) {
	out, err := p.exec.Run(ctx, notifySend,
		"--app-name="+appName,
		"--wait",
		"--action=allow=Allow",
		"--action=deny=Deny",
		"Allow emergency notifications?",
		"shelter will alert you about shelters, resources and warnings.",
	)
	if err != nil {
		return "", fmt.Errorf("prompt for permission: %w", err)
	}

	var decision notify.Permission
	switch strings.TrimSpace(string(out)) {
	case "allow":
		decision = notify.PermissionGranted
	case "deny":
		decision = notify.PermissionDenied
	default:
		return notify.PermissionDefault, nil
	}

	if err := p.consent.Save(ctx, decision); err != nil {
		p.log.Warn().Err(err).Msg("permission decision not persisted")
	}
	return decision, nil
}

// Show sends the notification and returns a handle that closes it by the id
// notify-send printed.
func (p *Platform) Show(ctx context.Context, n notify.Notification) (notify.Handle, error) {
	out, err := p.exec.Run(ctx, notifySend, showArgs(n)...)
	if err != nil {
		return nil, fmt.Errorf("notify-send: %w", err)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 32)
	if err != nil {
		// older notify-send has no --print-id; nothing to close later
		p.log.Debug().Str("output", string(out)).Msg("notification id unavailable")
		return notify.HandleFunc(func() error { return nil }), nil
	}

	return notify.HandleFunc(func() error {
		_, err := p.exec.Run(context.Background(), gdbus, closeArgs(uint32(id))...)
		return err
	}), nil
}

func showArgs(n notify.Notification) []string {
	args := []string{"--app-name=" + appName, "--print-id"}

	if n.Options.Icon != "" {
		args = append(args, "--icon="+n.Options.Icon)
	}
	if n.Options.Tag != "" {
		args = append(args, "--hint=string:x-dunst-stack-tag:"+n.Options.Tag)
	}
	if v, ok := n.Options.Extra["urgency"].(string); ok {
		args = append(args, "--urgency="+v)
	}
	if v, ok := n.Options.Extra["category"].(string); ok {
		args = append(args, "--category="+v)
	}

	args = append(args, "--", n.Title)
	if n.Options.Body != "" {
		args = append(args, n.Options.Body)
	}
	return args
}

func closeArgs(id uint32) []string {
	return []string{
		"call", "--session",
		"--dest", "org.freedesktop.Notifications",
		"--object-path", "/org/freedesktop/Notifications",
		"--method", "org.freedesktop.Notifications.CloseNotification",
		strconv.FormatUint(uint64(id), 10),
	}
}
