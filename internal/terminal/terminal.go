// Package terminal implements an interactive terminal session to a managed
// device. Keystrokes are assembled into command lines; each line is either
// published to the device's STOMP channel or, while the channel is down,
// answered by a small local interpreter.
//
// A Session is driven by a single goroutine (Run). Keystrokes, inbound
// messages, broker lifecycle callbacks and resize notifications are all
// queued onto one event channel and handled in arrival order, so session
// state and display writes never need locking.
package terminal

import (
	"errors"

	"github.com/dids/devterm/internal/client"
)

// ConnState is the state of a session's remote channel.
type ConnState int32

const (
	Connecting ConnState = iota
	Connected
	Disconnected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Prompt is written whenever the session is ready for the next line.
const Prompt = "$ "

// ErrNoIdentity is returned when a device has neither an id nor a name.
var ErrNoIdentity = errors.New("terminal: device has no id or name")

// Display is the character surface a session renders to.
type Display interface {
	// Write renders s verbatim, including any escape sequences.
	Write(s string)
	// Clear empties the visible output.
	Clear()
	// Refit re-measures the surface after a resize.
	Refit()
}

// Broker is the message channel a session talks to the relay over.
// client.StompClient implements it.
type Broker interface {
	Activate(h client.Handlers)
	Subscribe(destination string, fn func(body []byte)) (string, error)
	Publish(destination string, body []byte) error
	Deactivate() error
}

// Resizer delivers window-level resize notifications. The returned func
// removes the listener.
type Resizer interface {
	OnResize(fn func()) (cancel func())
}
