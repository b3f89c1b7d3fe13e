package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines the bindings the console keeps for itself. Every other
// key goes to the session.
type KeyMap struct {
	Quit     key.Binding
	Device   key.Binding
	Log      key.Binding
	Close    key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+]"),
			key.WithHelp("ctrl+]", "quit"),
		),
		Device: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "device"),
		),
		Log: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "log"),
		),
		Close: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "shift+up"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "shift+down"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// keyData translates a key press into the raw bytes a terminal would
// send. ok is false for keys the session does not understand.
func keyData(msg tea.KeyMsg) (data string, ok bool) {
	if msg.Alt {
		return "", false
	}
	switch msg.Type {
	case tea.KeyEnter:
		return "\r", true
	case tea.KeyBackspace:
		return "\x7f", true
	case tea.KeyCtrlH:
		return "\b", true
	case tea.KeyTab:
		return "\t", true
	case tea.KeySpace:
		return " ", true
	case tea.KeyRunes:
		if len(msg.Runes) == 0 {
			return "", false
		}
		return string(msg.Runes), true
	}
	return "", false
}
