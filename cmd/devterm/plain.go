package main

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dids/devterm/internal/terminal"
)

const (
	ctrlC       = 0x03
	ctrlBracket = 0x1d
)

// inputSplitter turns raw stdin reads into the chunks a session expects:
// Enter and erase keys on their own, other text grouped, and runes never
// split across chunks.
type inputSplitter struct {
	carry []byte
}

// split returns the chunks in p. quit is set when p holds ctrl+c or
// ctrl+]; nothing after it is returned.
func (s *inputSplitter) split(p []byte) (chunks []string, quit bool) {
	data := append(s.carry, p...)
	s.carry = nil

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			chunks = append(chunks, text.String())
			text.Reset()
		}
	}
	for i := 0; i < len(data); {
		b := data[i]
		switch b {
		case ctrlC, ctrlBracket:
			flush()
			return chunks, true
		case '\r', '\n':
			flush()
			chunks = append(chunks, "\r")
			i++
			continue
		case 0x7f, '\b':
			flush()
			chunks = append(chunks, string(b))
			i++
			continue
		}
		if !utf8.FullRune(data[i:]) {
			s.carry = append([]byte(nil), data[i:]...)
			break
		}
		_, size := utf8.DecodeRune(data[i:])
		text.Write(data[i : i+size])
		i += size
	}
	flush()
	return chunks, false
}

// pumpInput feeds r to session until r fails or the user quits.
func pumpInput(r io.Reader, session *terminal.Session) {
	var sp inputSplitter
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunks, quit := sp.split(buf[:n])
			for _, c := range chunks {
				session.Input(c)
			}
			if quit {
				session.Close()
				return
			}
		}
		if err != nil {
			session.Close()
			return
		}
	}
}
