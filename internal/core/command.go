package core

import "time"

// CommandType defines the type of command being dispatched.
type CommandType string

const (
	CmdRequestWeather CommandType = "weather"
	CmdRequestBattery CommandType = "battery"
)

// Command is the envelope for internal requests handled by the dispatcher,
// e.g. a delayed fetch or a cron-triggered refresh.
type Command struct {
	Type CommandType
}

// CommandChannel is the channel the Agent listens to for commands.
type CommandChannel chan Command

// HostEventType names an event raised by the host environment.
type HostEventType string

const (
	HostReady             HostEventType = "ready"
	HostShowConfiguration HostEventType = "showConfiguration"
	HostWebviewClosed     HostEventType = "webviewclosed"
	HostAppMessage        HostEventType = "appmessage"
)

// HostEvent is an inbound event from the host environment.
// Response is set for webviewclosed, Payload for appmessage.
type HostEvent struct {
	Type     HostEventType
	Response string
	Payload  map[string]any
}

// HostEventChannel carries host events to the Agent.
type HostEventChannel chan HostEvent

// DeviceMessage is a flat key to number mapping sent to the watch as one unit.
type DeviceMessage map[string]int

// Outcome is the result of a fetch task delivered back to the dispatcher.
type Outcome struct {
	Task    CommandType
	Message DeviceMessage
	Err     error
}

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PositionOptions controls how the host acquires a position.
type PositionOptions struct {
	Timeout    time.Duration
	MaximumAge time.Duration
}

// WatchInfo describes the paired watch.
type WatchInfo struct {
	Platform string `json:"platform"`
}
