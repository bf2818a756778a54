// Package terminal implements notify.Platform for interactive terminals: a
// huh confirm prompt asks for permission and notifications render as
// lipgloss toasts.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/styles"
)

// Platform shows notifications on a terminal.
type Platform struct {
	out     io.Writer
	consent *notify.Consent
	log     zerolog.Logger

	isTTY  func() bool
	prompt func(ctx context.Context) (bool, error)

	mu     sync.Mutex
	active map[string]struct{}
}

var _ notify.Platform = (*Platform)(nil)

// New creates a terminal platform writing toasts to out.
func New(out io.Writer, consent *notify.Consent, log zerolog.Logger) *Platform {
	return &Platform{
		out:     out,
		consent: consent,
		log:     log,
		isTTY: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
		prompt: confirm,
		active: make(map[string]struct{}),
	}
}

// Supported reports whether stdin and stdout are a terminal.
func (p *Platform) Supported() bool {
	return p.isTTY()
}

// Permission returns the stored decision.
func (p *Platform) Permission() notify.Permission {
	return p.consent.Load(context.Background())
}

// RequestPermission asks the user with a confirm prompt and stores the
// answer. Aborting the prompt leaves the decision open.
func (p *Platform) RequestPermission(ctx context.Context) (notify.Permission, error) {
	allowed, err := p.prompt(ctx)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return notify.PermissionDefault, nil
		}
		return "", fmt.Errorf("permission prompt: %w", err)
	}

	decision := notify.PermissionDenied
	if allowed {
		decision = notify.PermissionGranted
	}

	if err := p.consent.Save(ctx, decision); err != nil {
		p.log.Warn().Err(err).Msg("permission decision not persisted")
	}
	return decision, nil
}

// Show writes the notification as a toast.
func (p *Platform) Show(_ context.Context, n notify.Notification) (notify.Handle, error) {
	toast := styles.Toast(n.Title, n.Options.Body, fmt.Sprintf("closes in %s", notify.AutoDismissAfter), false)
	if _, err := fmt.Fprintln(p.out, toast); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.active[n.ID] = struct{}{}
	p.mu.Unlock()

	return notify.HandleFunc(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.active, n.ID)
		return nil
	}), nil
}

// Active returns how many toasts have not been dismissed yet.
func (p *Platform) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func confirm(ctx context.Context) (bool, error) {
	var allowed bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Allow emergency notifications?").
				Description("shelter will alert you about shelters, resources and warnings.").
				Affirmative("Allow").
				Negative("Deny").
				Value(&allowed),
		),
	).WithTheme(styles.FormTheme())

	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return allowed, nil
}
