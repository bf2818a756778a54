package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/shelter/internal/styles"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.modal.Visible() {
		return m.modal.Render(m.width, m.height)
	}

	var b strings.Builder

	badge := styles.OfflineBadge
	if m.online {
		badge = styles.OnlineBadge
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render("shelter"), "  ", badge,
		"  ", styles.MutedStyle.Render("notifications: "+string(m.svc.Notifier().Permission())),
	)
	if m.svc.Manual() {
		header += "  " + styles.MutedStyle.Render("(manual)")
	}
	if m.probing {
		header += "  " + m.spinner.View() + " probing"
	}
	b.WriteString(header + "\n")

	counts := freshStyle.Render(fmt.Sprintf("%d fresh", m.fresh)) +
		helpStyle.Render("·") + " " + expiredStyle.Render(fmt.Sprintf("%d expired", m.expired))
	if !m.showExpired && m.expired > 0 {
		counts += helpStyle.Render("(hidden)")
	}
	b.WriteString(" " + counts + "\n\n")

	if len(m.table.Rows()) == 0 {
		b.WriteString(helpStyle.Render("No cached entries") + "\n")
	} else {
		b.WriteString(m.table.View() + "\n")
	}

	for _, t := range m.toasts {
		footer := t.notice.At.Format("15:04:05")
		b.WriteString(styles.Toast(t.notice.Message, "", footer, !t.notice.Online) + "\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString(helpStyle.Render(m.status) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}
