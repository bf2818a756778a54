package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the monitor's key bindings.
type keyMap struct {
	Probe  key.Binding
	Purge  key.Binding
	Toggle key.Binding
	Stale  key.Binding
	Quit   key.Binding

	// modal
	Left    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Probe: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "probe"),
		),
		Purge: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "purge expired"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle online"),
		),
		Stale: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "show expired"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "right", "h", "l", "tab"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "n"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Probe, k.Purge, k.Toggle, k.Stale, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
