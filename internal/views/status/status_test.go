package status

import (
	"strings"
	"testing"

	"github.com/dids/devterm/internal/client"
)

func device() client.Device {
	return client.Device{ID: "1", Name: "PC-001", IP: "192.168.1.101", Status: "online", Alerts: 3}
}

func TestViewShowsDeviceAndState(t *testing.T) {
	m := New(device())
	m.Width = 100
	m.State = "connected"

	v := m.View()
	for _, want := range []string{"PC-001", "192.168.1.101", "online", "⚠ 3", "Connected"} {
		if !strings.Contains(v, want) {
			t.Errorf("expected %q in view, got:\n%s", want, v)
		}
	}
	if strings.Contains(v, "•") {
		t.Error("expected no pulse once connected")
	}
}

func TestViewLocalMode(t *testing.T) {
	m := New(device())
	m.Width = 100
	m.State = "disconnected"
	if v := m.View(); !strings.Contains(v, "Local mode") {
		t.Errorf("expected local mode label, got:\n%s", v)
	}
}

func TestPulseSweeps(t *testing.T) {
	m := New(device())
	if !m.Animating() {
		t.Fatal("expected new model to animate while connecting")
	}

	start := m.pulse()
	if !strings.HasPrefix(start, "•") {
		t.Fatalf("expected pulse to start at the left, got %q", start)
	}

	reachedEnd := false
	for i := 0; i < FPS*5; i++ {
		m.Tick()
		if strings.HasSuffix(m.pulse(), "•") {
			reachedEnd = true
		}
	}
	if !reachedEnd {
		t.Error("expected pulse to reach the right end")
	}
	if m.pos < -0.5 || m.pos > 1.5 {
		t.Errorf("expected pulse to stay near its track, got %f", m.pos)
	}
}

func TestViewNarrowWidth(t *testing.T) {
	m := New(device())
	m.Width = 10
	if v := m.View(); v == "" {
		t.Error("expected a view even when narrow")
	}
}
