package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dids/devterm/internal/stomp"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// stompServer is a minimal broker: it answers CONNECT, echoes every SEND
// back as a MESSAGE on the last subscription and records commands.
type stompServer struct {
	t        *testing.T
	refuse   string
	commands chan string
	sends    chan string
}

func (s *stompServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var subID string
	for {
		f, err := stomp.ReadFrame(conn)
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		s.commands <- f.Command
		switch f.Command {
		case frame.CONNECT:
			if s.refuse != "" {
				stomp.WriteFrame(conn, frame.New(frame.ERROR, frame.Message, s.refuse))
				return
			}
			stomp.WriteFrame(conn, frame.New(frame.CONNECTED,
				"version", stomp.Version,
				frame.HeartBeat, "0,0"))
		case frame.SUBSCRIBE:
			subID = f.Header.Get(frame.Id)
		case frame.SEND:
			s.sends <- string(f.Body)
			msg := frame.New(frame.MESSAGE,
				frame.Subscription, subID,
				frame.MessageId, "m-1",
				frame.Destination, "terminal-events/1")
			msg.Body = []byte("echo:" + string(f.Body))
			stomp.WriteFrame(conn, msg)
		case frame.DISCONNECT:
			return
		}
	}
}

func newStompServer(t *testing.T, refuse string) (*stompServer, string) {
	s := &stompServer{
		t:        t,
		refuse:   refuse,
		commands: make(chan string, 16),
		sends:    make(chan string, 16),
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestStompClientRoundTrip(t *testing.T) {
	srv, url := newStompServer(t, "")
	c := NewStompClient(url, StompOptions{ReconnectDelay: 50 * time.Millisecond})

	connected := make(chan struct{}, 1)
	c.Activate(Handlers{OnConnect: func() { connected <- struct{}{} }})
	waitFor(t, connected, "connect")
	if got := waitFor(t, srv.commands, "CONNECT"); got != frame.CONNECT {
		t.Fatalf("first frame = %s, want CONNECT", got)
	}
	if !c.Connected() {
		t.Fatal("Connected() = false after OnConnect")
	}

	got := make(chan string, 1)
	if _, err := c.Subscribe("terminal-events/1", func(body []byte) { got <- string(body) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, srv.commands, "SUBSCRIBE")

	if err := c.Publish("/app/terminal", []byte(`{"type":"command"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if body := waitFor(t, srv.sends, "SEND"); body != `{"type":"command"}` {
		t.Errorf("SEND body = %q", body)
	}
	if body := waitFor(t, got, "MESSAGE"); body != `echo:{"type":"command"}` {
		t.Errorf("MESSAGE body = %q", body)
	}

	if err := c.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	waitFor(t, srv.commands, "SEND command")
	if cmd := waitFor(t, srv.commands, "DISCONNECT"); cmd != frame.DISCONNECT {
		t.Errorf("last frame = %s, want DISCONNECT", cmd)
	}
	if err := c.Publish("/app/terminal", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Deactivate = %v, want ErrClosed", err)
	}
	if err := c.Deactivate(); err != nil {
		t.Errorf("second Deactivate: %v", err)
	}
}

func TestStompClientErrorFrame(t *testing.T) {
	_, url := newStompServer(t, "Bad credentials")
	c := NewStompClient(url, StompOptions{ReconnectDelay: time.Hour})
	defer c.Deactivate()

	errs := make(chan *ProtocolError, 1)
	c.Activate(Handlers{OnStompError: func(err *ProtocolError) { errs <- err }})

	pe := waitFor(t, errs, "stomp error")
	if pe.Message != "Bad credentials" {
		t.Errorf("Message = %q, want %q", pe.Message, "Bad credentials")
	}
	if c.Connected() {
		t.Error("Connected() = true after ERROR")
	}
}

func TestStompClientDialError(t *testing.T) {
	c := NewStompClient("ws://127.0.0.1:1/ws", StompOptions{
		ReconnectDelay: time.Hour,
		ConnectTimeout: time.Second,
	})
	defer c.Deactivate()

	errs := make(chan error, 1)
	c.Activate(Handlers{OnWebSocketError: func(err error) { errs <- err }})

	err := waitFor(t, errs, "dial error")
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Errorf("error = %v, want dial TransportError", err)
	}
	if err := c.Publish("/app/terminal", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish while down = %v, want ErrNotConnected", err)
	}
}

func TestDeactivateWithoutActivate(t *testing.T) {
	c := NewStompClient("ws://127.0.0.1:1/ws", StompOptions{})
	if err := c.Deactivate(); err != nil {
		t.Errorf("Deactivate: %v", err)
	}
}

func TestHostOf(t *testing.T) {
	tests := map[string]string{
		"ws://relay.local:8080/ws": "relay.local",
		"wss://10.0.0.5/ws":        "10.0.0.5",
		"::bad":                    "localhost",
	}
	for in, want := range tests {
		if got := hostOf(in); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}

// flakyServer answers CONNECT with the given heart-beat header and then
// either stays silent or drops the socket.
func flakyServer(t *testing.T, heartBeat string, drop bool) (string, *atomic.Int32) {
	t.Helper()
	var accepts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		accepts.Add(1)

		f, err := stomp.ReadFrame(conn)
		if err != nil || f == nil || f.Command != frame.CONNECT {
			return
		}
		stomp.WriteFrame(conn, frame.New(frame.CONNECTED,
			frame.Version, stomp.Version,
			frame.HeartBeat, heartBeat))
		if drop {
			return
		}
		for {
			// Read client heart-beats, never answer.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &accepts
}

func TestStompClientDetectsSilentPeer(t *testing.T) {
	url, accepts := flakyServer(t, "100,100", false)
	c := NewStompClient(url, StompOptions{
		ReconnectDelay:    50 * time.Millisecond,
		HeartbeatIncoming: 100 * time.Millisecond,
		HeartbeatOutgoing: 100 * time.Millisecond,
	})
	defer c.Deactivate()

	connects := make(chan struct{}, 16)
	closes := make(chan error, 16)
	c.Activate(Handlers{
		OnConnect:        func() { connects <- struct{}{} },
		OnWebSocketClose: func(err error) { closes <- err },
	})

	waitFor(t, connects, "first connect")
	err := waitFor(t, closes, "silent peer close")
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "read" {
		t.Errorf("close error = %v, want read TransportError", err)
	}
	waitFor(t, connects, "reconnect")
	if n := accepts.Load(); n < 2 {
		t.Errorf("server accepted %d connections, want at least 2", n)
	}
}

func TestStompClientReconnectsAfterDrop(t *testing.T) {
	url, _ := flakyServer(t, "0,0", true)
	c := NewStompClient(url, StompOptions{ReconnectDelay: 50 * time.Millisecond})
	defer c.Deactivate()

	connects := make(chan struct{}, 16)
	closes := make(chan error, 16)
	c.Activate(Handlers{
		OnConnect:        func() { connects <- struct{}{} },
		OnWebSocketClose: func(err error) { closes <- err },
	})

	for i := 0; i < 2; i++ {
		waitFor(t, connects, "connect")
		waitFor(t, closes, "close")
	}
}

func TestStompOptionsHeartbeatDefaults(t *testing.T) {
	c := NewStompClient("ws://127.0.0.1:1/ws", StompOptions{HeartbeatOutgoing: -1})
	if c.opts.HeartbeatIncoming != defaultHeartbeat {
		t.Errorf("HeartbeatIncoming = %v, want %v", c.opts.HeartbeatIncoming, defaultHeartbeat)
	}
	if c.opts.HeartbeatOutgoing != 0 {
		t.Errorf("HeartbeatOutgoing = %v, want 0 (disabled)", c.opts.HeartbeatOutgoing)
	}
	if c.opts.ReconnectDelay != defaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", c.opts.ReconnectDelay, defaultReconnectDelay)
	}
}
