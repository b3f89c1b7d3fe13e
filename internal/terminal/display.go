package terminal

import (
	"io"
	"sync"
)

const clearScreen = "\x1b[2J\x1b[3J\x1b[H"

// WriterDisplay renders a session straight onto a terminal stream, such as
// stdout in raw mode. The terminal emulator on the other end interprets
// echo, erase and color sequences itself.
type WriterDisplay struct {
	mu sync.Mutex
	w  io.Writer
	// OnRefit, if set, is called on every Refit.
	OnRefit func()
}

func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w}
}

func (d *WriterDisplay) Write(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	io.WriteString(d.w, s)
}

func (d *WriterDisplay) Clear() {
	d.Write(clearScreen)
}

func (d *WriterDisplay) Refit() {
	if d.OnRefit != nil {
		d.OnRefit()
	}
}
