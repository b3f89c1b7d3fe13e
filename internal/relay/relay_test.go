package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
	"github.com/dids/devterm/internal/inventory"
	"github.com/dids/devterm/internal/terminal"
)

type syncDisplay struct {
	mu  sync.Mutex
	out strings.Builder
}

func (d *syncDisplay) Write(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.WriteString(s)
}

func (d *syncDisplay) Clear() {}
func (d *syncDisplay) Refit() {}
func (d *syncDisplay) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.String()
}

func waitContains(t *testing.T, d *syncDisplay, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(d.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("display never showed %q:\n%q", want, d.String())
}

func TestSessionThroughRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Relay.Heartbeat = 200 * time.Millisecond
	r := New(ctx, cfg, inventory.NewMemoryStore())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	broker := client.NewStompClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", client.StompOptions{
		ReconnectDelay:    100 * time.Millisecond,
		HeartbeatIncoming: 200 * time.Millisecond,
		HeartbeatOutgoing: 200 * time.Millisecond,
	})
	display := &syncDisplay{}
	closed := make(chan struct{})
	device := client.Device{ID: "1", Name: "PC-001", IP: "192.168.1.101"}
	s, err := terminal.New(device, broker, display,
		terminal.WithCloseFunc(func() { close(closed) }))
	if err != nil {
		t.Fatal(err)
	}
	s.Open()
	go s.Run(ctx)

	waitContains(t, display, "Connected to PC-001 (192.168.1.101)")
	if s.State() != terminal.Connected {
		t.Fatalf("State() = %v, want connected", s.State())
	}

	for _, k := range []string{"p", "i", "n", "g", "\r"} {
		s.Input(k)
	}
	waitContains(t, display, "PING command - Device is reachable")

	// Outlive a few heart-beat intervals without losing the link.
	time.Sleep(700 * time.Millisecond)
	if s.State() != terminal.Connected {
		t.Errorf("State() after idle = %v, want connected", s.State())
	}

	for _, k := range []string{"e", "x", "i", "t", "\r"} {
		s.Input(k)
	}
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("close callback not invoked after exit")
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session not closed after exit")
	}

	deadline := time.Now().Add(3 * time.Second)
	for r.Broker.ConnCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := r.Broker.ConnCount(); n != 0 {
		t.Errorf("ConnCount() = %d after exit, want 0", n)
	}
}

func TestSessionFallsBackWhenRelayDown(t *testing.T) {
	broker := client.NewStompClient("ws://127.0.0.1:1/ws", client.StompOptions{
		ReconnectDelay: time.Hour,
		ConnectTimeout: time.Second,
	})
	display := &syncDisplay{}
	s, err := terminal.New(client.Device{Name: "PC-023", Status: "offline"}, broker, display)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Open()
	go s.Run(ctx)

	waitContains(t, display, "Falling back to local terminal mode")
	for _, k := range []string{"s", "t", "a", "t", "u", "s", "\r"} {
		s.Input(k)
	}
	waitContains(t, display, "Status: offline")
	s.Close()
}

func TestBrokerMaxConnections(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.MaxConnections = 1
	r := New(context.Background(), cfg, inventory.NewMemoryStore())
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	first := client.NewStompClient(url, client.StompOptions{ReconnectDelay: time.Hour})
	connected := make(chan struct{}, 1)
	first.Activate(client.Handlers{OnConnect: func() { connected <- struct{}{} }})
	defer first.Deactivate()
	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("first client did not connect")
	}

	second := client.NewStompClient(url, client.StompOptions{ReconnectDelay: time.Hour})
	failed := make(chan error, 1)
	second.Activate(client.Handlers{OnWebSocketError: func(err error) { failed <- err }})
	defer second.Deactivate()
	select {
	case <-failed:
	case <-time.After(3 * time.Second):
		t.Fatal("second client was not rejected")
	}
	if n := r.Broker.ConnCount(); n != 1 {
		t.Errorf("ConnCount() = %d, want 1", n)
	}
}

func TestRelayApply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := inventory.NewMemoryStore()
	cfg := config.Default()
	r := New(ctx, cfg, store)

	next := config.Default()
	next.Relay.CommandRate = 1
	next.Relay.CommandBurst = 1
	next.Server.TokenHash = hashFor(t, "s3cret")
	next.Inventory.Devices = []config.DeviceSeed{{ID: "42", Name: "PC-042", Status: "online"}}
	if err := r.Apply(ctx, next); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	d, err := store.Get(ctx, "42")
	if err != nil || d.Name != "PC-042" {
		t.Errorf("seeded device = %+v, %v", d, err)
	}
	if got := r.Service.settings().CommandBurst; got != 1 {
		t.Errorf("CommandBurst = %d, want 1", got)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/devices", nil))
	if rec.Code != 401 {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}
}
