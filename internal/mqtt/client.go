// Package mqtt bridges the sequencer to an MQTT broker: retained status,
// action log telemetry and remote start/stop control.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"dmx-sequenzer/internal/config"
	"dmx-sequenzer/internal/core"
)

// Client wraps the paho connection. A nil *Client (MQTT disabled) is safe to
// use; every method no-ops.
type Client struct {
	client         mqtt.Client
	cfg            *config.Config
	bus            *core.EventBus
	commandChannel core.CommandChannel
	prefix         string
	log            *logrus.Entry
}

// NewClient builds a client with reconnect handling, or nil when MQTT is
// disabled in the config.
func NewClient(cfg *config.Config, bus *core.EventBus, cmdChan core.CommandChannel) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")
	log := logrus.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// Keep trying at startup even when the broker is not up yet.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)

	// The broker announces us dead if the connection drops.
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:            cfg,
		bus:            bus,
		commandChannel: cmdChan,
		prefix:         prefix,
		log:            log,
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warnf("Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Info("Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)

	go c.forwardEvents()

	return c
}

// Connect initiates the connection.
func (c *Client) Connect() error {
	if c == nil {
		return nil
	}
	c.log.Infof("Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("Initial connection error: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Disconnect publishes the offline status first, then closes the socket.
func (c *Client) Disconnect() {
	if c == nil || !c.client.IsConnected() {
		return
	}
	c.log.Info("Disconnecting...")

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		c.log.Warnf("Failed to publish offline status: %v", token.Error())
	}
	c.client.Disconnect(250)
}

func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("Connected to broker")
	client.Publish(c.prefix+"/availability", 0, true, "online")

	c.subscribe(client, c.prefix+"/control/start", func(payload string) {
		c.send(core.CmdStartSequence, map[string]interface{}{"name": payload})
	})
	c.subscribe(client, c.prefix+"/control/run", func(payload string) {
		c.send(core.CmdRunSequence, map[string]interface{}{"name": payload})
	})
	c.subscribe(client, c.prefix+"/control/stop", func(string) {
		c.send(core.CmdStopSequence, nil)
	})
}

func (c *Client) subscribe(client mqtt.Client, topic string, handler func(payload string)) {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(strings.TrimSpace(string(msg.Payload())))
	})
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("Failed to subscribe to %s: %v", topic, token.Error())
	}
}

func (c *Client) send(t core.CommandType, payload map[string]interface{}) {
	select {
	case c.commandChannel <- core.Command{Type: t, Payload: payload}:
	default:
		c.log.Warn("Command channel full, dropping MQTT command")
	}
}

// forwardEvents publishes status changes (retained) and log entries.
func (c *Client) forwardEvents() {
	sub := c.bus.Subscribe(core.StatusChangedEvent, core.LogAppendedEvent)
	for event := range sub {
		if !c.client.IsConnected() {
			continue
		}
		data, err := json.Marshal(event.Payload)
		if err != nil {
			continue
		}
		switch event.Type {
		case core.StatusChangedEvent:
			c.client.Publish(c.prefix+"/status", 0, true, data)
		case core.LogAppendedEvent:
			c.client.Publish(c.prefix+"/log", 0, false, data)
		}
	}
}
