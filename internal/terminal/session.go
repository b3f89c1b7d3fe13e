package terminal

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dids/devterm/internal/client"
)

const eventQueueSize = 256

type event interface{}

type (
	keyEvent            struct{ data string }
	connectedEvent      struct{}
	stompErrorEvent     struct{ message string }
	transportErrorEvent struct{ err error }
	closedEvent         struct{ err error }
	inboundEvent        struct{ body []byte }
	resizeEvent         struct{}
)

// Option configures a Session.
type Option func(*Session)

// WithCloseFunc sets the callback invoked when the user ends the session
// with "exit". The surrounding view uses it to unmount the terminal.
func WithCloseFunc(fn func()) Option {
	return func(s *Session) { s.onClose = fn }
}

// WithStateFunc sets a callback invoked from the session loop on every
// connection state change.
func WithStateFunc(fn func(ConnState)) Option {
	return func(s *Session) { s.onState = fn }
}

// WithResizer subscribes the session to window resize notifications.
func WithResizer(r Resizer) Option {
	return func(s *Session) { s.resizer = r }
}

// WithTopicPrefix overrides the inbound topic prefix.
func WithTopicPrefix(prefix string) Option {
	return func(s *Session) { s.topicPrefix = prefix }
}

// WithDestination overrides the outbound destination.
func WithDestination(dest string) Option {
	return func(s *Session) { s.destination = dest }
}

// Session is one interactive terminal attached to one device. It owns its
// Connector, LineEditor and Display for its whole lifetime.
type Session struct {
	device  client.Device
	display Display
	editor  LineEditor
	conn    *Connector

	onClose     func()
	onState     func(ConnState)
	resizer     Resizer
	topicPrefix string
	destination string

	state  atomic.Int32
	events chan event
	done   chan struct{}

	closeOnce      sync.Once
	exitOnce       sync.Once
	disconnectSent atomic.Bool

	// openMu orders Open against Close and guards unsubResize.
	openMu      sync.Mutex
	unsubResize func()
}

// New creates a session for device, talking over broker and rendering to
// display. The device must have an id or a name.
func New(device client.Device, broker Broker, display Display, opts ...Option) (*Session, error) {
	if device.Identity() == "" {
		return nil, ErrNoIdentity
	}
	s := &Session{
		device:  device,
		display: display,
		events:  make(chan event, eventQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(int32(Connecting))
	s.conn = newConnector(broker, device, s.topicPrefix, s.destination, s.post)
	return s, nil
}

// Device returns the snapshot the session was created with.
func (s *Session) Device() client.Device { return s.device }

// State returns the current connection state.
func (s *Session) State() ConnState { return ConnState(s.state.Load()) }

// Topic returns the inbound topic for this session's device.
func (s *Session) Topic() string { return s.conn.Topic() }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Open starts listening for resizes and begins connecting. Events are not
// handled until Run is called. Open does nothing once the session is
// closed.
func (s *Session) Open() {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	if s.resizer != nil {
		s.unsubResize = s.resizer.OnResize(func() { s.post(resizeEvent{}) })
	}
	s.conn.Open()
}

// Input queues a raw keystroke chunk from the display surface.
func (s *Session) Input(data string) {
	s.post(keyEvent{data: data})
}

func (s *Session) post(ev event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run handles events until ctx is cancelled or the session is closed, then
// closes the session.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Close stops listening for resizes, announces the disconnect when
// connected and releases the channel. It is safe to call more than once
// and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.openMu.Lock()
		close(s.done)
		unsub := s.unsubResize
		s.unsubResize = nil
		s.openMu.Unlock()
		if unsub != nil {
			unsub()
		}
		announce := s.State() == Connected && !s.disconnectSent.Load()
		s.conn.Close(announce)
	})
}

func (s *Session) setState(st ConnState) {
	if ConnState(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case keyEvent:
		echo, line, submitted := s.editor.Feed(ev.data)
		if echo != "" {
			s.display.Write(echo)
		}
		if submitted {
			s.dispatch(line)
		}

	case connectedEvent:
		s.setState(Connected)
		if err := s.conn.subscribe(); err != nil {
			log.Printf("terminal %s: subscribe %s: %v", s.device.Identity(), s.conn.Topic(), err)
		}

	case stompErrorEvent:
		s.fallback(fmt.Sprintf("WebSocket Error: %s", ev.message))

	case transportErrorEvent:
		s.fallback(fmt.Sprintf("Connection Error: %v", ev.err))

	case closedEvent:
		// The broker keeps retrying; a dropped link is not a failure
		// until the next attempt reports one.
		if s.State() == Connected {
			s.setState(Connecting)
		}

	case inboundEvent:
		s.display.Write(string(ev.body))

	case resizeEvent:
		s.display.Refit()
	}
}

func (s *Session) fallback(diag string) {
	s.setState(Disconnected)
	s.writeln(red(diag))
	s.writeln("Falling back to local terminal mode")
	s.display.Write(Prompt)
}

func (s *Session) writeln(line string) {
	s.display.Write(line + "\r\n")
}

func red(s string) string  { return "\x1b[1;31m" + s + "\x1b[0m" }
func cyan(s string) string { return "\x1b[1;36m" + s + "\x1b[0m" }
