package terminal

import (
	"fmt"
	"log"
	"strings"

	"github.com/dids/devterm/internal/client"
)

const lastSeenLayout = "Jan 2, 2006 3:04:05 PM"

var helpLines = []string{
	"Available commands:",
	"  help     - Show this help message",
	"  clear    - Clear the terminal",
	"  status   - Show device status",
	"  info     - Show device information",
	"  exit     - Close terminal connection",
}

// dispatch routes a submitted line. The connection state is read once so
// a line is never half remote, half local.
func (s *Session) dispatch(line string) {
	state := s.State()

	if line == "" {
		// Only a connected session reprints the prompt for an empty line.
		if state == Connected {
			s.display.Write(Prompt)
		}
		return
	}

	if strings.EqualFold(line, "exit") {
		s.exit(state)
		return
	}

	if state == Connected {
		if err := s.conn.Publish(client.MsgCommand, line); err != nil {
			log.Printf("terminal %s: publish command: %v", s.device.Identity(), err)
		}
		return
	}

	s.runLocal(line)
}

func (s *Session) exit(state ConnState) {
	if state == Connected {
		if err := s.conn.Publish(client.MsgDisconnect, ""); err != nil {
			log.Printf("terminal %s: publish disconnect: %v", s.device.Identity(), err)
		}
		s.disconnectSent.Store(true)
	}
	s.exitOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
	s.Close()
}

// runLocal answers a line from the built-in table. Every branch ends with
// a prompt.
func (s *Session) runLocal(line string) {
	d := s.device
	switch strings.ToLower(line) {
	case "help":
		for _, l := range helpLines {
			s.writeln(l)
		}
	case "clear":
		s.display.Clear()
	case "status":
		s.writeln(cyan("Device Status:"))
		s.writeln("  Name: " + d.Name)
		s.writeln("  IP: " + d.IP)
		s.writeln("  Status: " + d.Status)
		s.writeln("  OS: " + d.OS)
		s.writeln(fmt.Sprintf("  Alerts: %d", d.Alerts))
	case "info":
		s.writeln(cyan("Device Information:"))
		s.writeln("  Device Name: " + d.Name)
		s.writeln("  IP Address: " + d.IP)
		s.writeln("  Operating System: " + d.OS)
		s.writeln("  Status: " + d.Status)
		s.writeln("  Last Seen: " + formatLastSeen(d))
		s.writeln(fmt.Sprintf("  Active Alerts: %d", d.Alerts))
	default:
		s.writeln(red("command not found: " + line))
		s.writeln(`Type "help" for available commands`)
	}
	s.display.Write(Prompt)
}

func formatLastSeen(d client.Device) string {
	if d.LastSeen.IsZero() {
		return "unknown"
	}
	return d.LastSeen.Local().Format(lastSeenLayout)
}
