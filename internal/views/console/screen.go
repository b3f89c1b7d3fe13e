// Package console renders a terminal session inside the TUI. Screen is a
// small character grid that understands the subset of terminal control
// sequences a session emits; Model scrolls it in a viewport.
package console

import (
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const (
	defaultScrollback = 1000
	tabWidth          = 8
	// maxColumns bounds the cursor column; output past it overwrites the
	// last column.
	maxColumns = 4096
)

// cell is one column of the grid. A wide rune occupies its cell plus a
// continuation cell with r == 0.
type cell struct {
	r     rune
	style string // SGR parameters in effect, "" for default
}

// Screen implements terminal.Display. It is safe for concurrent use: the
// session loop writes while the UI goroutine renders.
type Screen struct {
	mu         sync.Mutex
	lines      [][]cell
	row, col   int
	style      string
	pending    string // incomplete escape sequence from the last Write
	scrollback int
	onChange   func()
}

// NewScreen returns an empty screen. onChange, if non-nil, is called after
// every Write, Clear and Refit, outside the screen's lock.
func NewScreen(onChange func()) *Screen {
	return &Screen{
		lines:      [][]cell{nil},
		scrollback: defaultScrollback,
		onChange:   onChange,
	}
}

func (s *Screen) Write(data string) {
	s.mu.Lock()
	s.feed(s.pending + data)
	s.mu.Unlock()
	s.changed()
}

// Clear drops all output, scrollback included, and homes the cursor.
func (s *Screen) Clear() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	s.changed()
}

// Refit only signals a redraw; the grid itself does not wrap.
func (s *Screen) Refit() {
	s.changed()
}

func (s *Screen) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Screen) reset() {
	s.lines = [][]cell{nil}
	s.row, s.col = 0, 0
}

func (s *Screen) feed(data string) {
	s.pending = ""
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b == 0x1b:
			n, ok := s.escape(data[i:])
			if !ok {
				s.pending = data[i:]
				return
			}
			i += n
			continue
		case b == '\r':
			s.col = 0
		case b == '\n':
			s.lineFeed()
		case b == '\b':
			if s.col > 0 {
				s.col--
			}
		case b == '\t':
			s.col = min(maxColumns-1, (s.col/tabWidth+1)*tabWidth)
		case b < 0x20 || b == 0x7f:
			// other controls are ignored
		default:
			r, size := utf8.DecodeRuneInString(data[i:])
			if r == utf8.RuneError && size == 1 && !utf8.FullRuneInString(data[i:]) {
				s.pending = data[i:]
				return
			}
			s.put(r)
			i += size
			continue
		}
		i++
	}
}

// escape handles the sequence at the start of seq and returns its length.
// ok is false when seq ends before the sequence does.
func (s *Screen) escape(seq string) (n int, ok bool) {
	if len(seq) < 2 {
		return 0, false
	}
	if seq[1] != '[' {
		return 2, true
	}
	for j := 2; j < len(seq); j++ {
		c := seq[j]
		if c >= 0x40 && c <= 0x7e {
			s.csi(seq[2:j], c)
			return j + 1, true
		}
	}
	return 0, false
}

func (s *Screen) csi(params string, final byte) {
	switch final {
	case 'm':
		s.sgr(params)
	case 'J':
		if params == "2" || params == "3" {
			s.reset()
		}
	case 'H':
		// Only homing is supported.
		s.row, s.col = 0, 0
	case 'K':
		if s.row < len(s.lines) && s.col < len(s.lines[s.row]) {
			s.lines[s.row] = s.lines[s.row][:s.col]
		}
	case 'D':
		s.col = max(0, s.col-atoiDefault(params, 1))
	case 'C':
		s.col = min(maxColumns-1, s.col+atoiDefault(params, 1))
	}
}

func (s *Screen) sgr(params string) {
	if params == "" || params == "0" {
		s.style = ""
		return
	}
	if strings.HasPrefix(params, "0;") {
		s.style = strings.TrimPrefix(params, "0;")
		return
	}
	if s.style == "" {
		s.style = params
		return
	}
	s.style += ";" + params
}

func (s *Screen) lineFeed() {
	s.row++
	for len(s.lines) <= s.row {
		s.lines = append(s.lines, nil)
	}
	if over := len(s.lines) - s.scrollback; over > 0 {
		s.lines = s.lines[over:]
		s.row -= over
	}
}

func (s *Screen) put(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		return
	}
	if s.col+w > maxColumns {
		s.col = maxColumns - w
	}
	line := s.lines[s.row]
	for len(line) < s.col+w {
		line = append(line, cell{r: ' '})
	}
	line[s.col] = cell{r: r, style: s.style}
	if w == 2 {
		line[s.col+1] = cell{style: s.style}
	}
	s.lines[s.row] = line
	s.col += w
}

// Text returns the plain text of the grid, one string per line with
// trailing spaces trimmed.
func (s *Screen) Text() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	for i, line := range s.lines {
		var b strings.Builder
		for _, c := range line {
			if c.r != 0 {
				b.WriteRune(c.r)
			}
		}
		out[i] = strings.TrimRight(b.String(), " ")
	}
	return out
}

// Cursor returns the cursor's row and column.
func (s *Screen) Cursor() (row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row, s.col
}

// Render returns the grid with SGR styling re-applied. When cursor is set
// the cursor cell is drawn in reverse video.
func (s *Screen) Render(cursor bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for i, line := range s.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		cur := ""
		n := len(line)
		if cursor && i == s.row && s.col >= n {
			n = s.col + 1
		}
		for j := 0; j < n; j++ {
			c := cell{r: ' '}
			if j < len(line) {
				c = line[j]
			}
			if c.r == 0 {
				continue
			}
			style := c.style
			if cursor && i == s.row && j == s.col {
				style = joinSGR(style, "7")
			}
			if style != cur {
				b.WriteString("\x1b[0m")
				if style != "" {
					b.WriteString("\x1b[" + style + "m")
				}
				cur = style
			}
			b.WriteRune(c.r)
		}
		if cur != "" {
			b.WriteString("\x1b[0m")
		}
	}
	return b.String()
}

func joinSGR(a, b string) string {
	if a == "" {
		return b
	}
	return a + ";" + b
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxColumns)
}
