package mqtt

import (
	"testing"

	"companion-bridge/internal/config"
	"companion-bridge/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestNewClient_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Enabled = false
	assert.Nil(t, NewClient(cfg, core.NewEventBus(), make(core.HostEventChannel, 1)))
}

func TestNewClient_Enabled(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Enabled = true
	cfg.MQTT.TopicPrefix = "home/watch/"

	c := NewClient(cfg, core.NewEventBus(), make(core.HostEventChannel, 1))
	require.NotNil(t, c)
	assert.Equal(t, "home/watch", c.prefix)

	// not connected yet, so publishing is a no-op
	assert.NotPanics(t, func() { c.Publish("device/message", core.DeviceMessage{"battery_answer": 3}, false) })
	assert.NotPanics(t, c.Disconnect)
}

func TestEventFromMessage(t *testing.T) {
	c := &Client{prefix: "watch"}

	ev, err := c.eventFromMessage("watch/event/ready", nil)
	require.NoError(t, err)
	assert.Equal(t, core.HostEvent{Type: core.HostReady}, ev)

	ev, err = c.eventFromMessage("watch/event/showConfiguration", []byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, core.HostEvent{Type: core.HostShowConfiguration}, ev)

	ev, err = c.eventFromMessage("watch/event/webviewclosed", []byte("%7B%7D"))
	require.NoError(t, err)
	assert.Equal(t, core.HostEvent{Type: core.HostWebviewClosed, Response: "%7B%7D"}, ev)

	ev, err = c.eventFromMessage("watch/event/appmessage", []byte(`{"battery_request":1}`))
	require.NoError(t, err)
	assert.Equal(t, core.HostAppMessage, ev.Type)
	assert.Equal(t, map[string]any{"battery_request": float64(1)}, ev.Payload)

	ev, err = c.eventFromMessage("watch/event/appmessage", nil)
	require.NoError(t, err)
	assert.NotNil(t, ev.Payload)
	assert.Empty(t, ev.Payload)
}

func TestEventFromMessage_Rejects(t *testing.T) {
	c := &Client{prefix: "watch"}

	_, err := c.eventFromMessage("other/event/ready", nil)
	assert.Error(t, err)

	_, err = c.eventFromMessage("watch/event/reboot", nil)
	assert.Error(t, err)

	_, err = c.eventFromMessage("watch/event/appmessage", []byte("[1,2]"))
	assert.Error(t, err)
}

func TestHandleEvent(t *testing.T) {
	events := make(core.HostEventChannel, 1)
	c := &Client{prefix: "watch", events: events}

	c.handleEvent(nil, fakeMessage{topic: "watch/event/ready"})
	require.Len(t, events, 1)
	assert.Equal(t, core.HostReady, (<-events).Type)

	c.handleEvent(nil, fakeMessage{topic: "watch/event/nope"})
	assert.Empty(t, events)

	// full queue drops instead of blocking the paho callback
	c.handleEvent(nil, fakeMessage{topic: "watch/event/ready"})
	c.handleEvent(nil, fakeMessage{topic: "watch/event/showConfiguration"})
	require.Len(t, events, 1)
	assert.Equal(t, core.HostReady, (<-events).Type)
}

func TestMirrorTopic(t *testing.T) {
	topic, retained, ok := mirrorTopic(core.DeviceMessageSentEvent)
	assert.True(t, ok)
	assert.Equal(t, "device/message", topic)
	assert.False(t, retained)

	topic, retained, ok = mirrorTopic(core.OptionsChangedEvent)
	assert.True(t, ok)
	assert.Equal(t, "options/state", topic)
	assert.True(t, retained)

	topic, retained, ok = mirrorTopic(core.HostConnectedEvent)
	assert.True(t, ok)
	assert.Equal(t, "host/connected", topic)
	assert.True(t, retained)

	_, _, ok = mirrorTopic(core.EventType("other"))
	assert.False(t, ok)
}
