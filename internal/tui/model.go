package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/core/offline"
)

const (
	refreshInterval = time.Second
	probeTimeout    = 10 * time.Second
)

// Service is what the monitor reads and drives.
type Service interface {
	Cache() *offline.Cache
	Observer() *connectivity.Observer
	Notifier() *notify.Notifier
	Check(ctx context.Context) bool
	Manual() bool
	SetOnline(online bool) error
}

// Options configures the monitor.
type Options struct {
	// Notices delivers connectivity notices from the observer's sink.
	Notices <-chan connectivity.Notice
	Clock   clockwork.Clock
}

type toast struct {
	notice  connectivity.Notice
	expires time.Time
}

// noticeMsg carries a connectivity notice into the update loop.
type noticeMsg struct{ notice connectivity.Notice }

// probeDoneMsg is sent when an on-demand probe finishes.
type probeDoneMsg struct{ online bool }

// purgeDoneMsg is sent when a purge finishes.
type purgeDoneMsg struct {
	removed int
	err     error
}

// refreshTickMsg triggers a table refresh and toast expiry.
type refreshTickMsg struct{}

// Model is the Bubble Tea model for the monitor.
type Model struct {
	svc     Service
	notices <-chan connectivity.Notice
	clock   clockwork.Clock

	keys    keyMap
	help    help.Model
	table   table.Model
	spinner spinner.Model

	online      bool
	probing     bool
	showExpired bool
	fresh       int
	expired     int
	toasts      []toast
	modal       Modal
	status      string
	err         error
	width       int
	height      int
}

// New creates the monitor model.
func New(svc Service, opts Options) Model {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = spinnerStyle

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "KEY", Width: 36},
			{Title: "STATUS", Width: 10},
			{Title: "AGE", Width: 12},
			{Title: "SIZE", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	m := Model{
		svc:     svc,
		notices: opts.Notices,
		clock:   opts.Clock,
		keys:    defaultKeyMap(),
		help:    help.New(),
		table:   t,
		spinner: s,
		online:  svc.Observer().IsOnline(),
	}
	m.refreshRows()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForNotice(m.notices),
		scheduleRefresh(),
	)
}

func waitForNotice(ch <-chan connectivity.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{notice: n}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func (m Model) probe() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		return probeDoneMsg{online: svc.Check(ctx)}
	}
}

func (m Model) purge() tea.Cmd {
	cache := m.svc.Cache()
	return func() tea.Msg {
		n, err := cache.Purge(context.Background(), "")
		return purgeDoneMsg{removed: n, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		// header, toasts and help take roughly ten lines
		m.table.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case noticeMsg:
		m.online = msg.notice.Online
		m.toasts = append(m.toasts, toast{
			notice:  msg.notice,
			expires: m.clock.Now().Add(msg.notice.Duration),
		})
		return m, waitForNotice(m.notices)

	case refreshTickMsg:
		m.expireToasts()
		m.refreshRows()
		return m, scheduleRefresh()

	case probeDoneMsg:
		m.probing = false
		m.online = msg.online
		m.status = fmt.Sprintf("probe finished: online=%t", msg.online)
		return m, nil

	case purgeDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("purged %d expired entr(ies)", msg.removed)
		m.refreshRows()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.modal.Visible() {
			return m.updateModal(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Left):
		m.modal.ToggleSelection()
	case key.Matches(msg, m.keys.Confirm):
		confirmed := m.modal.ConfirmSelected()
		m.modal = Modal{}
		if confirmed {
			return m, m.purge()
		}
	case key.Matches(msg, m.keys.Cancel):
		m.modal = Modal{}
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Probe):
		if m.probing {
			return m, nil
		}
		m.probing = true
		m.status = ""
		return m, m.probe()

	case key.Matches(msg, m.keys.Purge):
		expired := 0
		for _, e := range m.svc.Cache().Entries() {
			if !e.Fresh {
				expired++
			}
		}
		if expired == 0 {
			m.status = "no expired entries"
			return m, nil
		}
		m.modal = NewModal("Purge expired entries", fmt.Sprintf("Remove %d expired entr(ies) from storage? Fresh entries are kept.", expired), "Purge")
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		if err := m.svc.SetOnline(!m.online); err != nil {
			m.status = "connectivity is probed; set connectivity.probe to manual to toggle"
		}
		return m, nil

	case key.Matches(msg, m.keys.Stale):
		m.showExpired = !m.showExpired
		m.refreshRows()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) expireToasts() {
	now := m.clock.Now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.expires) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

func (m *Model) refreshRows() {
	entries := m.svc.Cache().Entries()
	rows := make([]table.Row, 0, len(entries))
	now := m.clock.Now()
	m.fresh, m.expired = 0, 0

	for _, e := range entries {
		if e.Fresh {
			m.fresh++
		} else {
			m.expired++
		}
		if !e.Fresh && !m.showExpired {
			continue
		}

		status := "fresh"
		if !e.Fresh {
			status = "expired"
		}

		age := now.Sub(e.Entry.WrittenAt()).Truncate(time.Second)
		rows = append(rows, table.Row{e.Key, status, age.String(), fmt.Sprintf("%dB", len(e.Entry.Data))})
	}

	m.table.SetRows(rows)
}
