// Package messenger pushes device messages to the watch through the host.
// Delivery is best-effort and at-most-once: a failed send is logged and dropped.
package messenger

import (
	"fmt"
	"log"

	"companion-bridge/internal/core"
)

// Sender is the host primitive used to reach the watch.
type Sender interface {
	SendAppMessage(msg core.DeviceMessage) error
}

// Messenger wraps a Sender and swallows its failures.
type Messenger struct {
	sender   Sender
	eventBus *core.EventBus
}

// New creates a Messenger. eventBus may be nil.
func New(sender Sender, eventBus *core.EventBus) *Messenger {
	return &Messenger{sender: sender, eventBus: eventBus}
}

// Send makes exactly one transmission attempt. It reports whether the host
// accepted the message; callers are free to ignore the result.
func (m *Messenger) Send(msg core.DeviceMessage) bool {
	if err := m.trySend(msg); err != nil {
		log.Printf("[Messenger] sendAppMessage failed: %v", err)
		return false
	}

	if m.eventBus != nil {
		m.eventBus.Publish(core.Event{Type: core.DeviceMessageSentEvent, Payload: msg})
	}
	return true
}

func (m *Messenger) trySend(msg core.DeviceMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: host panic: %v", core.ErrTransport, r)
		}
	}()

	if err := m.sender.SendAppMessage(msg); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return nil
}
