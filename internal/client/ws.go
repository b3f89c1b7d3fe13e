package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dids/devterm/internal/stomp"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultHeartbeat      = 4 * time.Second
	defaultConnectTimeout = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

// errRemoteError ends a read loop after an ERROR frame has been reported.
var errRemoteError = errors.New("remote sent ERROR frame")

// Handlers receives broker lifecycle callbacks. They are called from the
// client's connection goroutine and must not block.
type Handlers struct {
	// OnConnect fires after every successful CONNECT/CONNECTED exchange,
	// including reconnects. Subscriptions must be re-established here.
	OnConnect func()
	// OnStompError fires when the broker answers with an ERROR frame.
	OnStompError func(err *ProtocolError)
	// OnWebSocketError fires when the transport cannot be established.
	OnWebSocketError func(err error)
	// OnWebSocketClose fires when an established connection drops.
	OnWebSocketClose func(err error)
}

func (h Handlers) connect() {
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

func (h Handlers) stompError(err *ProtocolError) {
	if h.OnStompError != nil {
		h.OnStompError(err)
	}
}

func (h Handlers) webSocketError(err error) {
	if h.OnWebSocketError != nil {
		h.OnWebSocketError(err)
	}
}

func (h Handlers) webSocketClose(err error) {
	if h.OnWebSocketClose != nil {
		h.OnWebSocketClose(err)
	}
}

// StompOptions tunes a StompClient. Zero values take the defaults; a
// negative heart-beat disables that direction.
type StompOptions struct {
	Token             string
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	ConnectTimeout    time.Duration
	Dialer            *websocket.Dialer
}

// StompClient is a STOMP 1.2 client over a WebSocket. After Activate it
// keeps reconnecting with a fixed delay until Deactivate is called.
type StompClient struct {
	url  string
	opts StompOptions

	mu        sync.Mutex
	writeMu   sync.Mutex // serialises all conn writes (frames and heart-beats)
	conn      *websocket.Conn
	connected bool
	subs      map[string]func(body []byte)
	cancel    context.CancelFunc
	done      chan struct{}
	active    bool
	closed    bool
}

// NewStompClient creates a client for the given WebSocket URL.
func NewStompClient(url string, opts StompOptions) *StompClient {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	opts.HeartbeatIncoming = heartbeatOrDefault(opts.HeartbeatIncoming)
	opts.HeartbeatOutgoing = heartbeatOrDefault(opts.HeartbeatOutgoing)
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &StompClient{url: url, opts: opts}
}

func heartbeatOrDefault(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return defaultHeartbeat
	case d < 0:
		return 0
	}
	return d
}

// Activate starts the connect/reconnect loop in the background. Calling it
// more than once, or after Deactivate, does nothing.
func (c *StompClient) Activate(h Handlers) {
	c.mu.Lock()
	if c.active || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.active = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx, h)
}

func (c *StompClient) run(ctx context.Context, h Handlers) {
	defer close(c.done)
	for {
		c.connectOnce(ctx, h)
		if ctx.Err() != nil {
			return
		}
		log.Printf("stomp: connection to %s lost (retry in %v)", c.url, c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// connectOnce runs a single connection from dial to disconnect.
func (c *StompClient) connectOnce(ctx context.Context, h Handlers) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, _, err := c.opts.Dialer.DialContext(dialCtx, c.url, header)
	cancelDial()
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("ws dial error: %v", err)
			h.webSocketError(&TransportError{Op: "dial", URL: c.url, Err: err})
		}
		return
	}

	// Register the conn before negotiating so Deactivate can interrupt it.
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	defer c.teardown(conn)

	send, expect, err := c.negotiate(conn)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var pe *ProtocolError
		if errors.As(err, &pe) {
			h.stompError(pe)
		} else {
			h.webSocketError(err)
		}
		return
	}

	c.mu.Lock()
	c.connected = true
	c.subs = make(map[string]func(body []byte))
	c.mu.Unlock()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	if send > 0 {
		go c.heartbeatLoop(hbCtx, conn, send)
	}

	h.connect()

	err = c.readLoop(conn, expect, h)
	if ctx.Err() != nil || errors.Is(err, errRemoteError) {
		return
	}
	h.webSocketClose(err)
}

func (c *StompClient) negotiate(conn *websocket.Conn) (send, expect time.Duration, err error) {
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, stomp.Version,
		frame.Host, hostOf(c.url),
		frame.HeartBeat, stomp.FormatHeartBeat(c.opts.HeartbeatOutgoing, c.opts.HeartbeatIncoming),
	)
	if err := c.write(conn, connect); err != nil {
		return 0, 0, &TransportError{Op: "write", URL: c.url, Err: err}
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.ConnectTimeout))
	for {
		f, err := stomp.ReadFrame(conn)
		if err != nil {
			return 0, 0, &TransportError{Op: "read", URL: c.url, Err: err}
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECTED:
			sx, sy, err := stomp.ParseHeartBeat(f.Header.Get(frame.HeartBeat))
			if err != nil {
				return 0, 0, &ProtocolError{Message: "bad heart-beat header", Body: err.Error()}
			}
			send, expect = stomp.Negotiate(c.opts.HeartbeatOutgoing, c.opts.HeartbeatIncoming, sx, sy)
			conn.SetReadDeadline(time.Time{})
			return send, expect, nil
		case frame.ERROR:
			return 0, 0, &ProtocolError{Message: stomp.ErrorMessage(f), Body: string(f.Body)}
		default:
			return 0, 0, &ProtocolError{Message: fmt.Sprintf("unexpected %s frame before CONNECTED", f.Command)}
		}
	}
}

// readLoop dispatches MESSAGE frames to their subscription handlers until
// the connection fails. A silent peer is detected after twice the
// negotiated heart-beat interval.
func (c *StompClient) readLoop(conn *websocket.Conn, expect time.Duration, h Handlers) error {
	for {
		if expect > 0 {
			conn.SetReadDeadline(time.Now().Add(2 * expect))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return &TransportError{Op: "read", URL: c.url, Err: err}
		}
		f, err := stomp.Decode(data)
		if err != nil {
			log.Printf("stomp: dropping undecodable message: %v", err)
			continue
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			c.mu.Lock()
			fn := c.subs[f.Header.Get(frame.Subscription)]
			c.mu.Unlock()
			if fn != nil {
				fn(f.Body)
			}
		case frame.ERROR:
			h.stompError(&ProtocolError{Message: stomp.ErrorMessage(f), Body: string(f.Body)})
			return errRemoteError
		}
	}
}

// heartbeatLoop sends heart-beats on conn until ctx is cancelled or a
// write fails.
func (c *StompClient) heartbeatLoop(ctx context.Context, conn *websocket.Conn, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := stomp.WriteHeartbeat(conn)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *StompClient) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
		c.subs = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *StompClient) write(conn *websocket.Conn, f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return stomp.WriteFrame(conn, f)
}

// Connected reports whether a CONNECTED frame has been received on the
// current connection.
func (c *StompClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe registers fn for MESSAGE frames on destination and returns the
// subscription id. Subscriptions do not survive a reconnect.
func (c *StompClient) Subscribe(destination string, fn func(body []byte)) (string, error) {
	c.mu.Lock()
	conn := c.conn
	if !c.connected || conn == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	id := "sub-" + uuid.NewString()
	c.subs[id] = fn
	c.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := c.write(conn, f); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return "", &TransportError{Op: "write", URL: c.url, Err: err}
	}
	return id, nil
}

// Unsubscribe cancels a subscription returned by Subscribe.
func (c *StompClient) Unsubscribe(id string) error {
	c.mu.Lock()
	conn := c.conn
	if !c.connected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	delete(c.subs, id)
	c.mu.Unlock()
	return c.write(conn, frame.New(frame.UNSUBSCRIBE, frame.Id, id))
}

// Publish sends body as an application/json SEND frame to destination.
func (c *StompClient) Publish(destination string, body []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !connected || conn == nil {
		return ErrNotConnected
	}

	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
	)
	f.Body = body
	if err := c.write(conn, f); err != nil {
		return &TransportError{Op: "write", URL: c.url, Err: err}
	}
	return nil
}

// Deactivate stops reconnecting, sends DISCONNECT if connected and closes
// the socket. It waits for the connection goroutine to exit and is safe to
// call more than once or without a prior Activate.
func (c *StompClient) Deactivate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	done := c.done
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if connected {
			if err := c.write(conn, frame.New(frame.DISCONNECT)); err != nil {
				log.Printf("stomp: disconnect frame: %v", err)
			}
		}
		conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}
