package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the progress view.
type KeyMap struct {
	Quit      key.Binding
	ToggleLog key.Binding
}

// DefaultKeyMap returns a KeyMap with default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "stop run"),
		),
		ToggleLog: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "toggle log"),
		),
	}
}
