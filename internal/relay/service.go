package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"golang.org/x/time/rate"
)

const (
	prompt     = "$ "
	crlf       = "\r\n"
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[1;31m"
	ansiGreen  = "\x1b[1;32m"
	ansiYellow = "\x1b[1;33m"
)

var serviceHelp = []string{
	"Available commands:",
	"  help     - Show this help message",
	"  clear    - Clear the terminal",
	"  ping     - Ping the device",
	"  sysinfo  - Show relay host information",
	"  exit     - Close terminal connection",
}

// Publisher delivers terminal output to a topic.
type Publisher interface {
	Publish(topic string, body []byte)
}

// SysInfoFunc renders host information for the sysinfo builtin.
type SysInfoFunc func(ctx context.Context) ([]string, error)

// TerminalService answers terminal control messages. Each device has at
// most one running command; a new command waits for the previous one.
type TerminalService struct {
	pub      Publisher
	terminal config.TerminalConfig
	sysinfo  SysInfoFunc

	mu       sync.Mutex
	relay    config.RelayConfig
	limiters map[string]*rate.Limiter
	running  map[string]*deviceRun
	ctx      context.Context
}

type deviceRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // held while a command runs
}

func NewTerminalService(ctx context.Context, pub Publisher, terminal config.TerminalConfig, relay config.RelayConfig) *TerminalService {
	return &TerminalService{
		pub:      pub,
		terminal: terminal,
		sysinfo:  HostInfo,
		relay:    relay,
		limiters: make(map[string]*rate.Limiter),
		running:  make(map[string]*deviceRun),
		ctx:      ctx,
	}
}

// Apply swaps in new relay settings. Existing rate limiters are retuned.
func (s *TerminalService) Apply(relay config.RelayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relay = relay
	for _, l := range s.limiters {
		l.SetLimit(rate.Limit(relay.CommandRate))
		l.SetBurst(relay.CommandBurst)
	}
	log.Printf("relay settings applied: shell=%s timeout=%v rate=%.1f/s burst=%d",
		relay.Shell, relay.CommandTimeout, relay.CommandRate, relay.CommandBurst)
}

// HandleFrame decodes a SEND body and handles it. It is the broker's
// SendHandler.
func (s *TerminalService) HandleFrame(body []byte) {
	var msg client.TerminalMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("terminal: bad message: %v", err)
		return
	}
	s.Handle(msg)
}

// Handle dispatches a control message by type.
func (s *TerminalService) Handle(msg client.TerminalMessage) {
	id := strings.TrimSpace(msg.DeviceID)
	if id == "" {
		log.Printf("terminal: message without deviceId dropped (type %q)", msg.Type)
		return
	}
	switch msg.Type {
	case client.MsgConnect:
		s.connect(id, msg)
	case client.MsgCommand:
		s.command(id, msg.Command)
	case client.MsgDisconnect:
		s.disconnect(id)
	default:
		s.send(id, "Unknown command type: "+string(msg.Type)+crlf)
	}
}

func (s *TerminalService) connect(id string, msg client.TerminalMessage) {
	log.Printf("terminal %s: session opened for %s (%s)", id, msg.DeviceName, msg.DeviceIP)
	s.send(id,
		ansiGreen+"Connected to "+msg.DeviceName+" ("+msg.DeviceIP+")"+ansiReset+crlf,
		ansiYellow+"Type 'help' for available commands"+ansiReset+crlf,
		crlf,
		prompt,
	)
}

func (s *TerminalService) command(id, command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		s.send(id, prompt)
		return
	}
	if !s.limiter(id).Allow() {
		s.send(id, red("Rate limit exceeded, slow down")+crlf, prompt)
		return
	}

	switch strings.ToLower(command) {
	case "help":
		lines := make([]string, 0, len(serviceHelp)+1)
		for _, l := range serviceHelp {
			lines = append(lines, l+crlf)
		}
		s.send(id, append(lines, prompt)...)
		return
	case "clear":
		s.send(id, "\x1b[2J\x1b[H", prompt)
		return
	case "exit":
		s.disconnect(id)
		return
	case "ping":
		s.send(id, "PING command - Device is reachable"+crlf, prompt)
		return
	case "sysinfo":
		go s.runSysInfo(id)
		return
	}

	run := s.deviceRun(id)
	go s.runCommand(id, run, command)
}

func (s *TerminalService) disconnect(id string) {
	s.mu.Lock()
	run := s.running[id]
	delete(s.running, id)
	delete(s.limiters, id)
	s.mu.Unlock()
	if run != nil {
		run.cancel()
	}
	log.Printf("terminal %s: session closed", id)
	s.send(id, ansiYellow+"Disconnected from device"+ansiReset+crlf)
}

func (s *TerminalService) deviceRun(id string) *deviceRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.running[id]
	if !ok {
		ctx, cancel := context.WithCancel(s.ctx)
		run = &deviceRun{ctx: ctx, cancel: cancel}
		s.running[id] = run
	}
	return run
}

func (s *TerminalService) limiter(id string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.relay.CommandRate), s.relay.CommandBurst)
		s.limiters[id] = l
	}
	return l
}

func (s *TerminalService) settings() config.RelayConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay
}

// runCommand runs command through the configured shell, streaming stdout
// line by line. Stderr follows in red once stdout is drained.
func (s *TerminalService) runCommand(id string, run *deviceRun, command string) {
	run.mu.Lock()
	defer run.mu.Unlock()

	cfg := s.settings()
	ctx, cancel := context.WithTimeout(run.ctx, cfg.CommandTimeout)
	defer cancel()
	if ctx.Err() != nil {
		return
	}

	pr, pw := io.Pipe()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cfg.Shell, "-c", command)
	cmd.Stdout = pw
	cmd.Stderr = &stderr
	// Background children may keep the pipes open after the shell is killed.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		pw.Close()
		s.send(id, red("Error: "+err.Error())+crlf, prompt)
		return
	}

	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waited <- err
	}()
	s.streamLines(id, pr)
	err := <-waited

	for _, line := range splitLines(stderr.String()) {
		s.send(id, red(line)+crlf)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.send(id, red(fmt.Sprintf("Command timed out after %v", cfg.CommandTimeout))+crlf)
	case run.ctx.Err() != nil:
		// Disconnected; nobody is listening for a prompt.
		return
	case errors.As(err, &exitErr):
		s.send(id, red(fmt.Sprintf("Command exited with code: %d", exitErr.ExitCode()))+crlf)
	default:
		s.send(id, red("Error: "+err.Error())+crlf)
	}
	s.send(id, prompt)
}

func (s *TerminalService) runSysInfo(id string) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	lines, err := s.sysinfo(ctx)
	if err != nil {
		s.send(id, red("sysinfo: "+err.Error())+crlf, prompt)
		return
	}
	out := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		out = append(out, l+crlf)
	}
	s.send(id, append(out, prompt)...)
}

func (s *TerminalService) streamLines(id string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		s.send(id, sc.Text()+crlf)
	}
	// Drain so the command never blocks on a full pipe.
	io.Copy(io.Discard, r)
}

// send publishes each part as its own message on the device topic.
func (s *TerminalService) send(id string, parts ...string) {
	topic := s.terminal.Topic(id)
	for _, p := range parts {
		s.pub.Publish(topic, []byte(p))
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func red(s string) string { return ansiRed + s + ansiReset }
