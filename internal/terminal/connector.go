package terminal

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/dids/devterm/internal/client"
	"github.com/dids/devterm/internal/config"
)

// Connector owns a session's channel to the relay: it activates the
// broker, subscribes to the device topic on every (re)connect and
// publishes terminal control messages.
type Connector struct {
	broker      Broker
	device      client.Device
	identity    string
	topic       string
	destination string
	post        func(event)

	closeOnce sync.Once
}

func newConnector(broker Broker, device client.Device, topicPrefix, destination string, post func(event)) *Connector {
	identity := device.Identity()
	tc := config.TerminalConfig{TopicPrefix: topicPrefix}
	if strings.TrimSpace(destination) == "" {
		destination = config.DefaultDestination
	}
	return &Connector{
		broker:      broker,
		device:      device,
		identity:    identity,
		topic:       tc.Topic(identity),
		destination: destination,
		post:        post,
	}
}

// Topic returns the destination inbound output arrives on.
func (c *Connector) Topic() string { return c.topic }

// Open starts connecting. Lifecycle callbacks are turned into session
// events; nothing here touches session state directly.
func (c *Connector) Open() {
	c.broker.Activate(client.Handlers{
		OnConnect: func() {
			c.post(connectedEvent{})
		},
		OnStompError: func(err *client.ProtocolError) {
			c.post(stompErrorEvent{message: err.Message})
		},
		OnWebSocketError: func(err error) {
			c.post(transportErrorEvent{err: err})
		},
		OnWebSocketClose: func(err error) {
			c.post(closedEvent{err: err})
		},
	})
}

// subscribe attaches to the device topic and announces the session. It is
// called from the session loop after each successful negotiation.
func (c *Connector) subscribe() error {
	_, err := c.broker.Subscribe(c.topic, func(body []byte) {
		c.post(inboundEvent{body: body})
	})
	if err != nil {
		return err
	}
	return c.Publish(client.MsgConnect, "")
}

// Publish sends a control message. Callers must check the session is
// connected first; nothing is queued.
func (c *Connector) Publish(t client.MessageType, command string) error {
	body, err := json.Marshal(client.TerminalMessage{
		DeviceID:   c.identity,
		DeviceName: c.device.Name,
		DeviceIP:   c.device.IP,
		Type:       t,
		Command:    command,
	})
	if err != nil {
		return err
	}
	return c.broker.Publish(c.destination, body)
}

// Close optionally announces the disconnect, then deactivates the broker.
// The broker is deactivated at most once however often Close is called.
func (c *Connector) Close(announce bool) {
	if announce {
		if err := c.Publish(client.MsgDisconnect, ""); err != nil {
			log.Printf("terminal %s: disconnect publish: %v", c.identity, err)
		}
	}
	c.closeOnce.Do(func() {
		if err := c.broker.Deactivate(); err != nil {
			log.Printf("terminal %s: deactivate: %v", c.identity, err)
		}
	})
}
