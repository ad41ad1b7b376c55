// Package options persists the configuration document and replays it to the watch.
package options

import (
	"log"

	"companion-bridge/internal/core"
	"companion-bridge/internal/storage"
)

// Sender delivers a device message, best-effort.
type Sender interface {
	Send(msg core.DeviceMessage) bool
}

// Store loads, saves and applies the configuration document.
type Store struct {
	kv       storage.KV
	key      string
	state    *core.OptionsState
	sender   Sender
	eventBus *core.EventBus

	// OnWeatherEnabled runs after a saved document with weather display enabled
	// has been applied. The agent uses it to schedule a delayed weather refresh.
	OnWeatherEnabled func()
}

// NewStore creates a Store. eventBus may be nil.
func NewStore(kv storage.KV, key string, state *core.OptionsState, sender Sender, eventBus *core.EventBus) *Store {
	return &Store{
		kv:       kv,
		key:      key,
		state:    state,
		sender:   sender,
		eventBus: eventBus,
	}
}

// Load replays the stored document, if any. A missing or malformed copy
// leaves the in-memory document unchanged and sends nothing.
func (s *Store) Load() {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		log.Printf("[Options] Failed to read stored config: %v", err)
		return
	}
	if !ok {
		return
	}

	o, err := core.ParseOptions(raw)
	if err != nil {
		log.Printf("[Options] Stored config parse error: %v - %s", err, raw)
		return
	}

	s.apply(o)
	log.Printf("[Options] Loaded stored config: %s", raw)
}

// Save writes raw verbatim to storage, then parses and applies it. The write
// happens before validation, so a malformed document still replaces the stored
// copy while the in-memory document stays as it was.
func (s *Store) Save(raw string) {
	if err := s.kv.Set(s.key, raw); err != nil {
		log.Printf("[Options] Failed to store config: %v", err)
	}

	o, err := core.ParseOptions(raw)
	if err != nil {
		log.Printf("[Options] Response config parse error: %v - %s", err, raw)
		return
	}

	s.apply(o)
	log.Printf("[Options] Options updated: %s", raw)

	if o.ShowWeather && s.OnWeatherEnabled != nil {
		s.OnWeatherEnabled()
	}
}

func (s *Store) apply(o core.Options) {
	s.state.Replace(o)
	s.sender.Send(o.Message())
	if s.eventBus != nil {
		s.eventBus.Publish(core.Event{Type: core.OptionsChangedEvent, Payload: o})
	}
}
