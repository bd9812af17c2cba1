package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the recording screen.
type KeyMap struct {
	Record    key.Binding
	Play      key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap returns the default key bindings for the recording screen.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Record: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "start/stop recording"),
		),
		Play: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "play recording"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d", "esc"),
			key.WithHelp("d", "dismiss"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
	}
}
