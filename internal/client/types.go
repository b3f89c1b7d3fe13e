// Package client provides the STOMP-over-WebSocket broker client and the
// REST inventory client used by the devterm console. Types mirror the relay
// wire protocol without importing relay packages.
package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// MessageType identifies the kind of terminal control message.
type MessageType string

const (
	MsgConnect    MessageType = "connect"
	MsgDisconnect MessageType = "disconnect"
	MsgCommand    MessageType = "command"
)

// TerminalMessage is the JSON body published to the terminal destination.
type TerminalMessage struct {
	DeviceID   string      `json:"deviceId"`
	DeviceName string      `json:"deviceName"`
	DeviceIP   string      `json:"deviceIp"`
	Type       MessageType `json:"type"`
	Command    string      `json:"command"`
}

// Device is the inventory record for a managed endpoint.
type Device struct {
	ID       DeviceID  `json:"id,omitempty"`
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	OS       string    `json:"os"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
	Alerts   int       `json:"alerts"`
}

// Identity returns the key a terminal session is addressed by: the device
// id when present, otherwise its name.
func (d Device) Identity() string {
	if id := strings.TrimSpace(string(d.ID)); id != "" {
		return id
	}
	return d.Name
}

// DeviceID accepts both numeric and string ids on the wire and always
// encodes as a string.
type DeviceID string

func (id *DeviceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DeviceID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = DeviceID(n.String())
	return nil
}

// StatusUpdate is the body of PATCH /api/devices/{id}/status.
type StatusUpdate struct {
	Status string `json:"status"`
}
