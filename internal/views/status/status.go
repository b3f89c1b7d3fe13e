package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/theme"
)

// FPS is the rate the connecting pulse is animated at.
const FPS = 30

const pulseWidth = 6

// Model renders the top bar: the device, its status and the session's
// connection state. While connecting, a spring-driven dot sweeps back and
// forth.
type Model struct {
	Device client.Device
	State  string
	Width  int

	spring   harmonica.Spring
	pos, vel float64
	target   float64
}

func New(device client.Device) Model {
	return Model{
		Device: device,
		State:  "connecting",
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 0.5),
		target: 1,
	}
}

// Animating reports whether Tick should keep being called.
func (m Model) Animating() bool {
	return m.State == "connecting"
}

// Tick advances the pulse by one frame.
func (m *Model) Tick() {
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if abs(m.target-m.pos) < 0.05 {
		m.target = 1 - m.target
	}
}

// TickInterval is the frame duration for FPS.
func TickInterval() time.Duration {
	return time.Second / FPS
}

func (m Model) View() string {
	stateStyle := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).Bold(true)
	left := theme.StyleHeader.Render(m.Device.Name)
	if m.Device.IP != "" {
		left += theme.StyleDimmed.Render(" (" + m.Device.IP + ")")
	}
	if m.Device.Status != "" {
		left += "  " + lipgloss.NewStyle().
			Foreground(theme.DeviceStatusColor(m.Device.Status)).
			Render(m.Device.Status)
	}
	if m.Device.Alerts > 0 {
		left += "  " + lipgloss.NewStyle().
			Foreground(theme.ColorAlert).
			Render(fmt.Sprintf("⚠ %d", m.Device.Alerts))
	}

	right := stateStyle.Render(theme.StateGlyph(m.State) + " " + stateLabel(m.State))
	if m.Animating() {
		right = stateStyle.Render(m.pulse()) + " " + right
	}

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right

	return lipgloss.NewStyle().
		Width(m.Width-2).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(theme.ColorBorder).
		Padding(0, 1).
		Render(bar)
}

// pulse draws the dot at the spring's position along a short track.
func (m Model) pulse() string {
	i := int(m.pos*float64(pulseWidth-1) + 0.5)
	if i < 0 {
		i = 0
	}
	if i > pulseWidth-1 {
		i = pulseWidth - 1
	}
	return strings.Repeat("·", i) + "•" + strings.Repeat("·", pulseWidth-1-i)
}

func stateLabel(state string) string {
	switch state {
	case "connected":
		return "Connected"
	case "connecting":
		return "Connecting..."
	case "disconnected":
		return "Local mode"
	default:
		return state
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
