// Package styles provides shared lipgloss styles for CLI and TUI components.
package styles

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorRed    = lipgloss.Color("#d75f6b")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
	ColorNight  = lipgloss.Color("#1a1b26")
)

// Banner ASCII art for the header.
const Banner = `
 ╔═╗╦ ╦╔═╗╦ ╔╦╗╔═╗╦═╗
 ╚═╗╠═╣║╣ ║  ║ ║╣ ╠╦╝
 ╚═╝╩ ╩╚═╝╩═╝╩ ╚═╝╩╚═`

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// DividerStyle styles horizontal dividers.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// Text styles used by the printer.
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorRed)
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorYellow)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	SectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// ToastStyle frames a notification or connectivity notice.
var ToastStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBlue).
	Padding(0, 1)

// OfflineToastStyle frames the offline notice.
var OfflineToastStyle = ToastStyle.BorderForeground(ColorYellow)

// ToastTitleStyle styles the first line of a toast.
var ToastTitleStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Bold(true)

// OnlineBadge and OfflineBadge render the connectivity state.
var (
	OnlineBadge  = lipgloss.NewStyle().Foreground(ColorNight).Background(ColorGreen).Padding(0, 1).Render("ONLINE")
	OfflineBadge = lipgloss.NewStyle().Foreground(ColorNight).Background(ColorYellow).Padding(0, 1).Render("OFFLINE")
)

// FormTheme returns the huh theme used by interactive prompts.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Title = t.Focused.Title.Foreground(ColorBlue).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorGray)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Foreground(ColorNight).Background(ColorBlue)
	t.Focused.BlurredButton = t.Focused.BlurredButton.Foreground(ColorWhite).Background(ColorGray)
	return t
}

// Toast renders a boxed message with an optional body and footer.
func Toast(title, body, footer string, offline bool) string {
	content := ToastTitleStyle.Render(title)
	if body != "" {
		content += "\n" + body
	}
	if footer != "" {
		content += "\n" + MutedStyle.Render(footer)
	}
	if offline {
		return OfflineToastStyle.Render(content)
	}
	return ToastStyle.Render(content)
}
