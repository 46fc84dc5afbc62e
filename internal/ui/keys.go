package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the key bindings for the console
type keyMap struct {
	Run      key.Binding
	Stop     key.Binding
	Custom   key.Binding
	OpenURL  key.Binding
	Clear    key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Run: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "run"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Custom: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "custom command"),
		),
		OpenURL: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "page down"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// short lists the bindings shown in the footer.
func (k keyMap) short() []key.Binding {
	return []key.Binding{k.Run, k.Stop, k.OpenURL, k.Help, k.Quit}
}

// full lists every binding, for the help view.
func (k keyMap) full() []key.Binding {
	return []key.Binding{
		k.Run, k.Stop, k.Custom, k.OpenURL, k.Clear,
		k.Up, k.Down, k.PageUp, k.PageDown, k.Help, k.Quit,
	}
}
