package tui

import "github.com/charmbracelet/lipgloss"

const modalWidth = 48

// Modal is a yes/no dialog drawn over the monitor. The zero value is hidden.
type Modal struct {
	title   string
	message string
	action  string
	visible bool
	confirm bool
}

// NewModal returns a visible modal whose confirm button reads action. The
// confirm button starts selected.
func NewModal(title, message, action string) Modal {
	return Modal{
		title:   title,
		message: message,
		action:  action,
		visible: true,
		confirm: true,
	}
}

// ToggleSelection moves focus to the other button.
func (m *Modal) ToggleSelection() { m.confirm = !m.confirm }

// ConfirmSelected reports whether the confirm button has focus.
func (m Modal) ConfirmSelected() bool { return m.confirm }

// Visible reports whether the modal is shown.
func (m Modal) Visible() bool { return m.visible }

// Render draws the modal centered in a width x height area.
func (m Modal) Render(width, height int) string {
	confirmStyle, cancelStyle := modalButtonSelectedStyle, modalButtonStyle
	if !m.confirm {
		confirmStyle, cancelStyle = modalButtonStyle, modalButtonSelectedStyle
	}

	buttons := lipgloss.JoinHorizontal(lipgloss.Center,
		confirmStyle.Render(m.action), "  ", cancelStyle.Render("Cancel"))

	content := lipgloss.JoinVertical(lipgloss.Left,
		modalTitleStyle.Render(m.title),
		"",
		lipgloss.NewStyle().Width(modalWidth).Render(m.message),
		lipgloss.NewStyle().MarginTop(1).Render(buttons),
		modalHelpStyle.Render("tab switch  enter choose  esc cancel"),
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}
