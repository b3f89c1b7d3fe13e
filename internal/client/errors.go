package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a frame is sent without an active
	// broker connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Deactivate.
	ErrClosed = errors.New("client deactivated")
)

// TransportError is a WebSocket-level failure (dial, read, write).
type TransportError struct {
	Op  string // "dial", "read", "write"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError carries a STOMP ERROR frame or a negotiation failure.
type ProtocolError struct {
	Message string
	Body    string
}

func (e *ProtocolError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("stomp: %s: %s", e.Message, e.Body)
	}
	return "stomp: " + e.Message
}
