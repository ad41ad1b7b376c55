package core

import (
	"encoding/json"
	"fmt"
	"sync"
)

// TemperatureUnits selects how weather temperatures are reported to the device.
type TemperatureUnits int

const (
	Fahrenheit TemperatureUnits = iota
	Celsius
)

// Options is the user configuration document shown on the watch.
// Field order matches the order the configuration page expects.
type Options struct {
	ShowNoPhone      bool             `json:"config_show_no_phone"`
	ShowWeather      bool             `json:"config_show_weather"`
	TemperatureUnits TemperatureUnits `json:"config_temperature_units"`
	ShowBattery      bool             `json:"config_show_battery"`
	ShowPhoneBattery bool             `json:"config_show_phone_battery"`
	Vibe             bool             `json:"config_vibe"`
	VibeHour         bool             `json:"config_vibe_hour"`
	Background       int              `json:"config_background"`
}

// DefaultOptions returns the document used until a stored or received one replaces it.
func DefaultOptions() Options {
	return Options{
		ShowNoPhone:      true,
		ShowWeather:      true,
		TemperatureUnits: Fahrenheit,
		ShowBattery:      true,
	}
}

// ParseOptions decodes a raw configuration document. Missing keys take the
// zero value; they are never merged with the current or default document.
func ParseOptions(raw string) (Options, error) {
	var o Options
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Options{}, fmt.Errorf("%w: options: %v", ErrParse, err)
	}
	if o.TemperatureUnits != Fahrenheit && o.TemperatureUnits != Celsius {
		return Options{}, fmt.Errorf("%w: options: config_temperature_units must be 0 or 1, got %d", ErrParse, o.TemperatureUnits)
	}
	if o.Background < 0 {
		return Options{}, fmt.Errorf("%w: options: config_background must not be negative, got %d", ErrParse, o.Background)
	}
	return o, nil
}

// Message builds the full-configuration device message.
func (o Options) Message() DeviceMessage {
	return DeviceMessage{
		"config_show_no_phone":      boolInt(o.ShowNoPhone),
		"config_show_weather":       boolInt(o.ShowWeather),
		"config_temperature_units":  int(o.TemperatureUnits),
		"config_show_battery":       boolInt(o.ShowBattery),
		"config_show_phone_battery": boolInt(o.ShowPhoneBattery),
		"config_vibe":               boolInt(o.Vibe),
		"config_vibe_hour":          boolInt(o.VibeHour),
		"config_background":         o.Background,
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// OptionsState holds the single source of truth for the configuration document.
type OptionsState struct {
	mu      sync.RWMutex
	current Options
}

// NewOptionsState creates a state holding the given document.
func NewOptionsState(initial Options) *OptionsState {
	return &OptionsState{current: initial}
}

// Current returns a snapshot of the document.
func (s *OptionsState) Current() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Units returns the configured temperature units.
func (s *OptionsState) Units() TemperatureUnits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.TemperatureUnits
}

// Replace swaps in a whole new document.
func (s *OptionsState) Replace(o Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = o
}
