// Package debug collects the process log and shows it as a scrollable
// overlay. Log is an io.Writer, so the standard logger can be pointed at
// it alongside the log file.
package debug

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dids/devterm/internal/theme"
)

const maxEntries = 500

// stdlog's default "2006/01/02 15:04:05 " prefix.
const stdPrefixLayout = "2006/01/02 15:04:05"

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    string // "stomp", "term", "err", "state" or "log"
	Message string
}

// Log is a bounded, concurrency-safe list of entries.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	onChange func()
	now      func() time.Time
}

// NewLog returns an empty log. onChange, if non-nil, is called after each
// added entry, outside the lock.
func NewLog(onChange func()) *Log {
	return &Log{onChange: onChange, now: time.Now}
}

// Add appends an entry and drops the oldest past the cap.
func (l *Log) Add(kind, message string) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Time: l.now(), Kind: kind, Message: message})
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetOnChange replaces the change callback.
func (l *Log) SetOnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Write adds one entry per line of p, stripping the standard logger's
// timestamp and guessing the kind from the message.
func (l *Log) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		line = stripStdPrefix(line)
		if line == "" {
			continue
		}
		l.Add(classify(line), line)
	}
	return len(p), nil
}

// Entries returns a copy of the current entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func stripStdPrefix(line string) string {
	n := len(stdPrefixLayout)
	if len(line) > n && line[n] == ' ' {
		if _, err := time.Parse(stdPrefixLayout, line[:n]); err == nil {
			return line[n+1:]
		}
	}
	return line
}

func classify(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "failed"):
		return "err"
	case strings.HasPrefix(lower, "stomp"):
		return "stomp"
	case strings.HasPrefix(lower, "terminal"):
		return "term"
	case strings.HasPrefix(lower, "state"):
		return "state"
	default:
		return "log"
	}
}

// Model is the overlay over a Log.
type Model struct {
	Log    *Log
	Offset int // scroll offset (from bottom)
}

func New(log *Log) Model {
	return Model{Log: log}
}

// ScrollUp moves the view toward older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	limit := len(m.Log.Entries()) - 1
	if limit < 0 {
		limit = 0
	}
	if m.Offset > limit {
		m.Offset = limit
	}
}

// ScrollDown moves the view toward newer entries.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	entries := m.Log.Entries()
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 8
	if visible < 3 {
		visible = 3
	}

	title := theme.StyleHeader.Render(" SESSION LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("pgup/pgdn:scroll  esc:close  %d entries", len(entries)))

	if len(entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing logged yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := len(entries) - m.Offset
	if end < 0 {
		end = 0
	}
	start := end - visible
	if start < 0 {
		start = 0
	}

	msgW := innerW - 26
	lines := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(e.Kind)
		msg := e.Message
		if msgW > 3 && lipgloss.Width(msg) > msgW {
			msg = truncate(msg, msgW-3) + "..."
		}
		lines = append(lines, ts+" "+kind+" "+msg)
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help)
	return panelStyle(innerW).Render(content)
}

func truncate(s string, w int) string {
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > w {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case "stomp":
		return theme.ColorStomp
	case "term":
		return theme.ColorTerm
	case "err":
		return theme.ColorError
	case "state":
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}
