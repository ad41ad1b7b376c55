package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"companion-bridge/internal/config"
	"companion-bridge/internal/core"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client mirrors device traffic to a broker and accepts host events from it.
type Client struct {
	client   mqtt.Client
	cfg      *config.Config
	eventBus *core.EventBus
	events   core.HostEventChannel
	prefix   string
}

// NewClient creates the MQTT client, or returns nil when MQTT is disabled.
func NewClient(cfg *config.Config, eventBus *core.EventBus, events core.HostEventChannel) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	// keep retrying at startup so a broker that comes up later is still picked up
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetOrderMatters(false)

	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:      cfg,
		eventBus: eventBus,
		events:   events,
		prefix:   prefix,
	}

	opts.SetOnConnectHandler(c.onConnect)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		log.Println("[MQTT] Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)

	return c
}

// Connect starts the connection.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.MQTT.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Initial connection error: %v", token.Error())
		return token.Error()
	}

	return nil
}

// Disconnect publishes the offline status and closes the connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")

		token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
			}
		} else {
			log.Println("[MQTT] Warning: timed out publishing offline status")
		}

		c.client.Disconnect(250)
		log.Println("[MQTT] Disconnected.")
	}
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload any, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	var msg any
	switch p := payload.(type) {
	case string, []byte:
		msg = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			log.Printf("[MQTT] Failed to encode payload for %s: %v", topic, err)
			return
		}
		msg = data
	}

	token := c.client.Publish(topic, 0, retained, msg)

	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				log.Printf("[MQTT] Publish error to %s: %v", topic, token.Error())
			}
		} else {
			log.Printf("[MQTT] Timeout publishing to %s", topic)
		}
	}()
}

// Run mirrors bus events to the broker until ctx is done.
func (c *Client) Run(ctx context.Context) {
	types := []core.EventType{core.DeviceMessageSentEvent, core.OptionsChangedEvent, core.HostConnectedEvent}
	sub := c.eventBus.Subscribe(types...)
	defer c.eventBus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			if topic, retained, ok := mirrorTopic(event.Type); ok {
				c.Publish(topic, event.Payload, retained)
			}
		}
	}
}

// mirrorTopic maps a bus event to the subtopic it is mirrored on.
func mirrorTopic(t core.EventType) (subtopic string, retained bool, ok bool) {
	switch t {
	case core.DeviceMessageSentEvent:
		return "device/message", false, true
	case core.OptionsChangedEvent:
		return "options/state", true, true
	case core.HostConnectedEvent:
		return "host/connected", true, true
	}
	return "", false, false
}

// onConnect is called by Paho on its internal goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")

	topic := fmt.Sprintf("%s/event/+", c.prefix)
	if token := client.Subscribe(topic, 1, c.handleEvent); token.Wait() && token.Error() != nil {
		log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("[MQTT] Subscribed to %s", topic)
	}

	go c.Publish("availability", "online", true)
}

func (c *Client) handleEvent(_ mqtt.Client, msg mqtt.Message) {
	ev, err := c.eventFromMessage(msg.Topic(), msg.Payload())
	if err != nil {
		log.Printf("[MQTT] Ignoring %s: %v", msg.Topic(), err)
		return
	}

	select {
	case c.events <- ev:
	default:
		log.Printf("[MQTT] Event queue full, dropping %s", ev.Type)
	}
}

// eventFromMessage turns <prefix>/event/<type> plus payload into a host event.
func (c *Client) eventFromMessage(topic string, payload []byte) (core.HostEvent, error) {
	name, ok := strings.CutPrefix(topic, c.prefix+"/event/")
	if !ok {
		return core.HostEvent{}, fmt.Errorf("unexpected topic")
	}

	switch core.HostEventType(name) {
	case core.HostReady:
		return core.HostEvent{Type: core.HostReady}, nil
	case core.HostShowConfiguration:
		return core.HostEvent{Type: core.HostShowConfiguration}, nil
	case core.HostWebviewClosed:
		return core.HostEvent{Type: core.HostWebviewClosed, Response: string(payload)}, nil
	case core.HostAppMessage:
		p := map[string]any{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return core.HostEvent{}, fmt.Errorf("bad appmessage payload: %w", err)
			}
			if p == nil {
				p = map[string]any{}
			}
		}
		return core.HostEvent{Type: core.HostAppMessage, Payload: p}, nil
	}
	return core.HostEvent{}, fmt.Errorf("unknown event %q", name)
}
