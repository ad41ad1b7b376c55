package server

import "encoding/json"

// Frame types sent by the host.
const (
	FrameReady             = "ready"
	FrameShowConfiguration = "showConfiguration"
	FrameWebviewClosed     = "webviewclosed"
	FrameAppMessage        = "appmessage"
	FrameReply             = "reply"
)

// Frame types sent to the host.
const (
	FrameSendAppMessage     = "sendAppMessage"
	FrameOpenURL            = "openURL"
	FrameGetActiveWatchInfo = "getActiveWatchInfo"
	FrameGetCurrentPosition = "getCurrentPosition"
)

// Command represents an incoming JSON frame from the host.
type Command struct {
	Type     string          `json:"type"`
	ID       uint64          `json:"id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response string          `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Message represents an outgoing JSON frame sent to the host.
type Message struct {
	Type    string `json:"type"`
	ID      uint64 `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// NewMessage creates a new structured Message for the host.
func NewMessage(msgType string, payload any) Message {
	return Message{Type: msgType, Payload: payload}
}

// positionRequest is the payload of a getCurrentPosition frame, in milliseconds.
type positionRequest struct {
	Timeout    int64 `json:"timeout"`
	MaximumAge int64 `json:"maximumAge"`
}

// openURLRequest is the payload of an openURL frame.
type openURLRequest struct {
	URL string `json:"url"`
}
