// Package theme provides the Lip Gloss color palette and reusable styles
// for the devterm console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection state colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#dc2626")
)

// Device status colors.
var (
	ColorOnline  = lipgloss.Color("#22c55e")
	ColorOffline = lipgloss.Color("#6b7280")
	ColorAlert   = lipgloss.Color("#f59e0b")
)

// Log kind colors.
var (
	ColorStomp = lipgloss.Color("#2563eb")
	ColorTerm  = lipgloss.Color("#7c3aed")
	ColorError = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorFg      = lipgloss.Color("#d4d4d4")
	ColorWarning = lipgloss.Color("#d97706")
)

// StateColor returns the color for a connection state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorConnected
	case "connecting":
		return ColorConnecting
	case "disconnected":
		return ColorDisconnected
	default:
		return ColorDimmed
	}
}

// StateGlyph returns the indicator shown next to a connection state.
func StateGlyph(state string) string {
	switch state {
	case "connected":
		return "●"
	case "connecting":
		return "◌"
	case "disconnected":
		return "○"
	default:
		return "·"
	}
}

// DeviceStatusColor returns the color for a device status.
func DeviceStatusColor(status string) lipgloss.Color {
	switch status {
	case "online":
		return ColorOnline
	case "offline":
		return ColorOffline
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleConsole = lipgloss.NewStyle().
			Foreground(ColorFg)
)
