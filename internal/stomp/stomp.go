// Package stomp carries STOMP 1.2 frames over WebSocket messages: one frame
// per text message, a bare end-of-line message as a heart-beat.
package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// Version is the only protocol version spoken on either side.
const Version = "1.2"

// Heartbeat is the payload of a heart-beat message.
var Heartbeat = []byte{'\n'}

// Encode serialises f into a single WebSocket payload.
func Encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a WebSocket payload. A heart-beat decodes to a nil frame
// and a nil error.
func Decode(data []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// WriteFrame encodes f and writes it as a text message.
func WriteFrame(conn *websocket.Conn, f *frame.Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// WriteHeartbeat writes a single heart-beat message.
func WriteHeartbeat(conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.TextMessage, Heartbeat)
}

// ReadFrame blocks for the next message on conn and decodes it. Heart-beats
// return a nil frame.
func ReadFrame(conn *websocket.Conn) (*frame.Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// FormatHeartBeat renders a heart-beat header value: the interval this side
// can send at, then the interval it wants to receive at.
func FormatHeartBeat(send, receive time.Duration) string {
	return strconv.FormatInt(send.Milliseconds(), 10) + "," + strconv.FormatInt(receive.Milliseconds(), 10)
}

// ParseHeartBeat parses a heart-beat header value. A missing header means
// no heart-beating in either direction.
func ParseHeartBeat(value string) (send, receive time.Duration, err error) {
	if value == "" {
		return 0, 0, nil
	}
	return frame.ParseHeartBeat(value)
}

// Negotiate applies the STOMP heart-beat rules. localSend/localReceive come
// from this side's header, remoteSend/remoteReceive from the peer's. It
// returns how often this side must send and how often it should expect to
// hear from the peer; zero disables the direction.
func Negotiate(localSend, localReceive, remoteSend, remoteReceive time.Duration) (send, expect time.Duration) {
	if localSend > 0 && remoteReceive > 0 {
		send = max(localSend, remoteReceive)
	}
	if localReceive > 0 && remoteSend > 0 {
		expect = max(localReceive, remoteSend)
	}
	return send, expect
}

// ErrorMessage extracts the human-readable text of an ERROR frame.
func ErrorMessage(f *frame.Frame) string {
	if f == nil || f.Header == nil {
		return "unknown error"
	}
	if msg := f.Header.Get(frame.Message); msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return string(f.Body)
	}
	return "unknown error"
}
