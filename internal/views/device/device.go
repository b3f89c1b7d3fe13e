// Package device renders the device information card shown over the
// console.
package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/theme"
)

const lastSeenLayout = "Jan 2, 2006 3:04:05 PM"

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)
)

// Model caches the rendered card for one width.
type Model struct {
	Device client.Device

	width    int
	rendered string
}

func New(d client.Device) Model {
	return Model{Device: d}
}

// Markdown describes d as a markdown document.
func Markdown(d client.Device) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", `\|`))
	}
	row("ID", string(d.ID))
	row("IP Address", d.IP)
	row("Operating System", d.OS)
	row("Status", d.Status)
	row("Last Seen", formatLastSeen(d.LastSeen))
	row("Active Alerts", fmt.Sprint(d.Alerts))
	if d.Alerts > 0 {
		fmt.Fprintf(&b, "\n> %d alert(s) need attention.\n", d.Alerts)
	}
	return b.String()
}

// Render renders d for a terminal of the given width.
func Render(d client.Device, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(Markdown(d))
}

// View renders the card, re-rendering only when the width changes.
func (m *Model) View(width, height int) string {
	inner := width - 4
	if inner < 20 {
		inner = 20
	}
	if m.rendered == "" || m.width != inner {
		out, err := Render(m.Device, inner)
		if err != nil {
			out = Markdown(m.Device)
		}
		m.rendered = strings.TrimRight(out, "\n")
		m.width = inner
	}

	title := titleStyle.Render(" DEVICE ")
	hint := theme.StyleDimmed.Render("esc to close")
	body := lipgloss.JoinVertical(lipgloss.Left, title, m.rendered, hint)
	return panelStyle.Width(inner).MaxHeight(height).Render(body)
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(lastSeenLayout)
}
