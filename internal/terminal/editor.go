package terminal

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

const (
	keyEnter     = "\r"
	keyDelete    = "\x7f"
	keyBackspace = "\b"
)

// LineEditor assembles raw input chunks into command lines with
// terminal-style echo. It supports appending and erasing at the end of the
// line only; there is no cursor movement or history.
type LineEditor struct {
	buf []rune
}

// Feed consumes one input chunk. It returns the text to echo and, when the
// chunk was a carriage return, the submitted line trimmed of surrounding
// whitespace. The buffer is reset on every submission, including empty ones.
func (e *LineEditor) Feed(chunk string) (echo, line string, submitted bool) {
	switch chunk {
	case keyEnter:
		line = strings.TrimSpace(string(e.buf))
		e.buf = e.buf[:0]
		return "\r\n", line, true

	case keyDelete, keyBackspace:
		if len(e.buf) == 0 {
			return "", "", false
		}
		last := e.buf[len(e.buf)-1]
		e.buf = e.buf[:len(e.buf)-1]
		return eraseSequence(last), "", false

	default:
		// Invalid bytes are echoed as they are stored.
		chunk = strings.ToValidUTF8(chunk, string(utf8.RuneError))
		e.buf = append(e.buf, []rune(chunk)...)
		return chunk, "", false
	}
}

// Pending returns the line typed so far.
func (e *LineEditor) Pending() string {
	return string(e.buf)
}

// eraseSequence moves the cursor back over r, blanks it and moves back
// again. Wide runes occupy two columns.
func eraseSequence(r rune) string {
	w := runewidth.RuneWidth(r)
	if w < 1 {
		w = 1
	}
	back := strings.Repeat("\b", w)
	return back + strings.Repeat(" ", w) + back
}
