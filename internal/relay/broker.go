package relay

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dids/devterm/internal/stomp"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	serverName   = "devterm-relay/1.0"
)

// ErrTooManyConnections is returned by AddConn when the broker is full.
var ErrTooManyConnections = errors.New("too many connections")

// SendHandler receives the body of every SEND frame addressed to the
// application destination.
type SendHandler func(body []byte)

type subscription struct {
	id          string
	destination string
}

type stompConn struct {
	ws      *websocket.Conn
	send    chan []byte
	session string

	mu   sync.Mutex
	subs map[string]subscription
	// heart-beat interval for writePump; set once after CONNECT.
	beat chan time.Duration
}

func newStompConn(ws *websocket.Conn) *stompConn {
	c := &stompConn{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		session: uuid.NewString(),
		subs:    make(map[string]subscription),
		beat:    make(chan time.Duration, 1),
	}
	go c.writePump()
	return c
}

// writePump owns all writes to the socket. It also emits heart-beats once
// an interval has been negotiated.
func (c *stompConn) writePump() {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		c.ws.Close()
	}()
	var tick <-chan time.Time
	for {
		select {
		case every := <-c.beat:
			if every > 0 && ticker == nil {
				ticker = time.NewTicker(every)
				tick = ticker.C
			}
		case msg, ok := <-c.send:
			if !ok {
				c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-tick:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := stomp.WriteHeartbeat(c.ws); err != nil {
				return
			}
		}
	}
}

func (c *stompConn) subscriptionsFor(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, s := range c.subs {
		if s.destination == destination {
			ids = append(ids, s.id)
		}
	}
	return ids
}

// Broker is a small STOMP 1.2 broker: clients subscribe to topics, SEND
// frames to the application destination go to a SendHandler, and the
// application publishes back to topics.
type Broker struct {
	mu          sync.RWMutex
	conns       map[*stompConn]bool
	destination string
	heartbeat   time.Duration
	maxConns    int
	handler     SendHandler
}

// NewBroker creates a broker accepting SENDs on destination. A maxConns
// of zero means unlimited.
func NewBroker(destination string, heartbeat time.Duration, maxConns int, handler SendHandler) *Broker {
	return &Broker{
		conns:       make(map[*stompConn]bool),
		destination: destination,
		heartbeat:   heartbeat,
		maxConns:    maxConns,
		handler:     handler,
	}
}

// AddConn registers an upgraded socket. The caller must then run Serve.
func (b *Broker) AddConn(ws *websocket.Conn) (*stompConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.conns) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	c := newStompConn(ws)
	b.conns[c] = true
	return c, nil
}

func (b *Broker) removeConn(c *stompConn) {
	b.mu.Lock()
	if _, ok := b.conns[c]; ok {
		delete(b.conns, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// ConnCount returns the number of open client connections.
func (b *Broker) ConnCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Serve reads frames from c until the client disconnects or fails.
func (b *Broker) Serve(c *stompConn) {
	defer b.removeConn(c)

	expect, err := b.handshake(c)
	if err != nil {
		log.Printf("stomp handshake %s: %v", c.ws.RemoteAddr(), err)
		return
	}

	for {
		if expect > 0 {
			c.ws.SetReadDeadline(time.Now().Add(2 * expect))
		}
		f, err := stomp.ReadFrame(c.ws)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("stomp read %s: %v", c.ws.RemoteAddr(), err)
			}
			return
		}
		if f == nil {
			continue
		}
		if done := b.handleFrame(c, f); done {
			return
		}
	}
}

func (b *Broker) handshake(c *stompConn) (expect time.Duration, err error) {
	c.ws.SetReadDeadline(time.Now().Add(writeTimeout))
	var f *frame.Frame
	for f == nil {
		if f, err = stomp.ReadFrame(c.ws); err != nil {
			return 0, err
		}
	}
	if f.Command != frame.CONNECT && f.Command != frame.STOMP {
		b.sendError(c, "expected CONNECT", "")
		return 0, fmt.Errorf("first frame was %s", f.Command)
	}
	if !acceptsVersion(f.Header.Get(frame.AcceptVersion)) {
		b.sendError(c, "unsupported protocol version", "Supported versions are "+stomp.Version)
		return 0, fmt.Errorf("accept-version %q", f.Header.Get(frame.AcceptVersion))
	}
	cx, cy, err := stomp.ParseHeartBeat(f.Header.Get(frame.HeartBeat))
	if err != nil {
		b.sendError(c, "invalid heart-beat header", "")
		return 0, err
	}
	send, expect := stomp.Negotiate(b.heartbeat, b.heartbeat, cx, cy)

	b.enqueue(c, frame.New(frame.CONNECTED,
		frame.Version, stomp.Version,
		frame.Session, c.session,
		frame.Server, serverName,
		frame.HeartBeat, stomp.FormatHeartBeat(b.heartbeat, b.heartbeat),
	))
	c.beat <- send
	c.ws.SetReadDeadline(time.Time{})
	return expect, nil
}

// handleFrame processes one client frame and reports whether the
// connection should end.
func (b *Broker) handleFrame(c *stompConn, f *frame.Frame) bool {
	switch f.Command {
	case frame.SUBSCRIBE:
		id, dest := f.Header.Get(frame.Id), f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			b.sendError(c, "SUBSCRIBE requires id and destination", "")
			return true
		}
		c.mu.Lock()
		c.subs[id] = subscription{id: id, destination: dest}
		c.mu.Unlock()

	case frame.UNSUBSCRIBE:
		c.mu.Lock()
		delete(c.subs, f.Header.Get(frame.Id))
		c.mu.Unlock()

	case frame.SEND:
		dest := f.Header.Get(frame.Destination)
		if dest != b.destination {
			b.sendError(c, "unknown destination", dest)
			return true
		}
		if b.handler != nil {
			b.handler(f.Body)
		}

	case frame.DISCONNECT:
		b.receipt(c, f)
		return true

	default:
		b.sendError(c, "unsupported frame", f.Command)
		return true
	}
	b.receipt(c, f)
	return false
}

// Publish delivers body to every subscription on topic.
func (b *Broker) Publish(topic string, body []byte) {
	b.mu.RLock()
	conns := make([]*stompConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.RUnlock()

	for _, c := range conns {
		for _, sub := range c.subscriptionsFor(topic) {
			msg := frame.New(frame.MESSAGE,
				frame.Destination, topic,
				frame.Subscription, sub,
				frame.MessageId, uuid.NewString(),
				frame.ContentType, "text/plain;charset=utf-8",
			)
			msg.Body = body
			b.enqueue(c, msg)
		}
	}
}

func (b *Broker) enqueue(c *stompConn, f *frame.Frame) {
	data, err := stomp.Encode(f)
	if err != nil {
		log.Printf("stomp encode %s: %v", f.Command, err)
		return
	}
	// The read lock keeps removeConn from closing c.send mid-send.
	b.mu.RLock()
	_, open := b.conns[c]
	full := false
	if open {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	b.mu.RUnlock()
	if full {
		log.Printf("stomp client %s too slow, disconnecting", c.ws.RemoteAddr())
		b.removeConn(c)
	}
}

func (b *Broker) receipt(c *stompConn, f *frame.Frame) {
	if r := f.Header.Get(frame.Receipt); r != "" {
		b.enqueue(c, frame.New(frame.RECEIPT, frame.ReceiptId, r))
	}
}

func (b *Broker) sendError(c *stompConn, message, body string) {
	f := frame.New(frame.ERROR, frame.Message, message)
	if body != "" {
		f.Body = []byte(body)
	}
	b.enqueue(c, f)
}

func acceptsVersion(header string) bool {
	// STOMP 1.0 clients omit the header entirely.
	if header == "" {
		return false
	}
	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == stomp.Version {
			return true
		}
	}
	return false
}
