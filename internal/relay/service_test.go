package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (p *recordingPublisher) Publish(topic string, body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][]string)
	}
	p.msgs[topic] = append(p.msgs[topic], string(body))
}

func (p *recordingPublisher) output(topic string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.msgs[topic], "")
}

// waitOutput polls until the topic output ends with suffix.
func (p *recordingPublisher) waitOutput(t *testing.T, topic, suffix string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if out := p.output(topic); strings.HasSuffix(out, suffix) {
			return out
		}
		time.Sleep(10 * time.Millisecond)
	}
	out := p.output(topic)
	t.Fatalf("output on %s never ended with %q:\n%q", topic, suffix, out)
	return out
}

func newTestService(t *testing.T) (*TerminalService, *recordingPublisher) {
	t.Helper()
	cfg := config.Default()
	cfg.Relay.CommandTimeout = 2 * time.Second
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewTerminalService(ctx, pub, cfg.Terminal, cfg.Relay), pub
}

func msg(typ client.MessageType, command string) client.TerminalMessage {
	return client.TerminalMessage{
		DeviceID:   "1",
		DeviceName: "PC-001",
		DeviceIP:   "192.168.1.101",
		Type:       typ,
		Command:    command,
	}
}

const topic1 = "terminal-events/1"

func TestServiceConnectBanner(t *testing.T) {
	s, pub := newTestService(t)
	s.Handle(msg(client.MsgConnect, ""))

	want := "\x1b[1;32mConnected to PC-001 (192.168.1.101)\x1b[0m\r\n" +
		"\x1b[1;33mType 'help' for available commands\x1b[0m\r\n" +
		"\r\n$ "
	if got := pub.output(topic1); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestServiceBuiltins(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"", []string{"$ "}},
		{"help", []string{"Available commands:\r\n", "  ping     - Ping the device\r\n", "$ "}},
		{"PING", []string{"PING command - Device is reachable\r\n", "$ "}},
		{"clear", []string{"\x1b[2J\x1b[H", "$ "}},
		{"exit", []string{"Disconnected from device"}},
	}
	for _, tt := range tests {
		s, pub := newTestService(t)
		s.Handle(msg(client.MsgCommand, tt.command))
		out := pub.output(topic1)
		for _, w := range tt.want {
			if !strings.Contains(out, w) {
				t.Errorf("%q: output missing %q:\n%q", tt.command, w, out)
			}
		}
	}
}

func TestServiceUnknownType(t *testing.T) {
	s, pub := newTestService(t)
	s.Handle(msg("resize", ""))
	if got := pub.output(topic1); got != "Unknown command type: resize\r\n" {
		t.Errorf("output = %q", got)
	}
}

func TestServiceDropsMessageWithoutDevice(t *testing.T) {
	s, pub := newTestService(t)
	s.HandleFrame([]byte(`{"type":"connect"}`))
	s.HandleFrame([]byte(`not json`))
	if len(pub.msgs) != 0 {
		t.Errorf("published %v, want nothing", pub.msgs)
	}
}

func TestServiceRunsShellCommand(t *testing.T) {
	s, pub := newTestService(t)
	s.Handle(msg(client.MsgCommand, "echo hello; echo world"))

	out := pub.waitOutput(t, topic1, "$ ")
	if out != "hello\r\nworld\r\n$ " {
		t.Errorf("output = %q", out)
	}
}

func TestServiceReportsExitCodeAndStderr(t *testing.T) {
	s, pub := newTestService(t)
	s.Handle(msg(client.MsgCommand, "echo oops >&2; exit 3"))

	out := pub.waitOutput(t, topic1, "$ ")
	for _, want := range []string{
		"\x1b[1;31moops\x1b[0m\r\n",
		"\x1b[1;31mCommand exited with code: 3\x1b[0m\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%q", want, out)
		}
	}
}

func TestServiceCommandTimeout(t *testing.T) {
	s, pub := newTestService(t)
	relay := config.Default().Relay
	relay.CommandTimeout = 100 * time.Millisecond
	s.Apply(relay)

	s.Handle(msg(client.MsgCommand, "sleep 5"))

	out := pub.waitOutput(t, topic1, "$ ")
	if !strings.Contains(out, "Command timed out after 100ms") {
		t.Errorf("output = %q, want timeout notice", out)
	}
}

func TestServiceDisconnectKillsCommand(t *testing.T) {
	s, pub := newTestService(t)
	s.Handle(msg(client.MsgCommand, "sleep 5"))
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	s.Handle(msg(client.MsgDisconnect, ""))
	pub.waitOutput(t, topic1, "Disconnected from device\x1b[0m\r\n")

	// The killed command must not print a prompt after the goodbye.
	time.Sleep(1500 * time.Millisecond)
	if out := pub.output(topic1); strings.HasSuffix(out, "$ ") {
		t.Errorf("prompt after disconnect: %q", out)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("disconnect did not stop the command")
	}
}

func TestServiceRateLimit(t *testing.T) {
	s, pub := newTestService(t)
	relay := config.Default().Relay
	relay.CommandRate = 0.001
	relay.CommandBurst = 1
	s.Apply(relay)

	s.Handle(msg(client.MsgCommand, "ping"))
	s.Handle(msg(client.MsgCommand, "ping"))

	out := pub.output(topic1)
	if strings.Count(out, "Device is reachable") != 1 {
		t.Errorf("ping answered %d times, want 1", strings.Count(out, "Device is reachable"))
	}
	if !strings.Contains(out, "Rate limit exceeded") {
		t.Errorf("output missing rate limit notice: %q", out)
	}
}

func TestServiceSysInfo(t *testing.T) {
	s, pub := newTestService(t)
	s.sysinfo = func(context.Context) ([]string, error) {
		return []string{"  Hostname: relay-1"}, nil
	}
	s.Handle(msg(client.MsgCommand, "sysinfo"))
	if out := pub.waitOutput(t, topic1, "$ "); out != "  Hostname: relay-1\r\n$ " {
		t.Errorf("output = %q", out)
	}

	s2, pub2 := newTestService(t)
	s2.sysinfo = func(context.Context) ([]string, error) { return nil, errors.New("no host") }
	s2.Handle(msg(client.MsgCommand, "sysinfo"))
	if out := pub2.waitOutput(t, topic1, "$ "); !strings.Contains(out, "sysinfo: no host") {
		t.Errorf("output = %q", out)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
		3 << 30: "3.0 GiB",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
