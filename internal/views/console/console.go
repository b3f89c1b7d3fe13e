package console

import (
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/dids/devterm/internal/theme"
)

// Model shows a Screen in a scrollable viewport. It follows the output
// unless the user has scrolled up.
type Model struct {
	Screen   *Screen
	Focused  bool
	viewport viewport.Model
}

func New(screen *Screen) Model {
	return Model{
		Screen:   screen,
		Focused:  true,
		viewport: viewport.New(0, 0),
	}
}

// SetSize resizes the viewport.
func (m *Model) SetSize(width, height int) {
	m.viewport.Width = width
	m.viewport.Height = height
	m.Sync()
}

// Sync reloads the screen contents.
func (m *Model) Sync() {
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.Screen.Render(m.Focused))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) ScrollUp(n int) {
	m.viewport.SetYOffset(m.viewport.YOffset - n)
}

func (m *Model) ScrollDown(n int) {
	m.viewport.SetYOffset(m.viewport.YOffset + n)
}

// PageUp scrolls back by one screen.
func (m *Model) PageUp() { m.ScrollUp(m.viewport.Height) }

// PageDown scrolls forward by one screen.
func (m *Model) PageDown() { m.ScrollDown(m.viewport.Height) }

// Following reports whether the view is pinned to the newest output.
func (m Model) Following() bool {
	return m.viewport.AtBottom()
}

func (m Model) View() string {
	return theme.StyleConsole.Render(m.viewport.View())
}
