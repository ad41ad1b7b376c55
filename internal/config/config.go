package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig - host websocket endpoint
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig - durable key-value storage for the options document
type StorageConfig struct {
	File string `yaml:"file"`
	Key  string `yaml:"key"`
}

// WeatherConfig - weather service endpoint and client-side quota
type WeatherConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	APIKey    string  `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// BatteryConfig - local battery-status endpoint
type BatteryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// LauncherConfig - external configuration page
type LauncherConfig struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"`
}

// TimingConfig - delays and timeouts, as duration strings
type TimingConfig struct {
	RequestDelay    string `yaml:"request_delay"`
	SettleDelay     string `yaml:"settle_delay"`
	LocationTimeout string `yaml:"location_timeout"`
	LocationMaxAge  string `yaml:"location_max_age"`
	HTTPTimeout     string `yaml:"http_timeout"` // "0" means no client-side timeout
	HostReplyGrace  string `yaml:"host_reply_grace"`
}

// MQTTConfig - optional MQTT mirror
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // tcp://IP:PORT
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ScheduleEntry triggers a refresh command on a cron spec.
type ScheduleEntry struct {
	Spec    string `yaml:"spec" json:"spec"`
	Command string `yaml:"command" json:"command"`
}

// Config - top-level service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Weather   WeatherConfig   `yaml:"weather"`
	Battery   BatteryConfig   `yaml:"battery"`
	Launcher  LauncherConfig  `yaml:"launcher"`
	Timing    TimingConfig    `yaml:"timing"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Schedules []ScheduleEntry `yaml:"schedules"`
}

// Durations holds the parsed TimingConfig.
type Durations struct {
	RequestDelay    time.Duration
	SettleDelay     time.Duration
	LocationTimeout time.Duration
	LocationMaxAge  time.Duration
	HTTPTimeout     time.Duration
	HostReplyGrace  time.Duration
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the file, expands ${VAR} references, parses YAML (JSON also works)
// and applies sanitize/defaults/validate. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-provided configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: failed to read '%s': %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse '%s': %w", path, err)
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Durations parses the timing section. Load has already validated it.
func (c *Config) Durations() Durations {
	parse := func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}
	return Durations{
		RequestDelay:    parse(c.Timing.RequestDelay),
		SettleDelay:     parse(c.Timing.SettleDelay),
		LocationTimeout: parse(c.Timing.LocationTimeout),
		LocationMaxAge:  parse(c.Timing.LocationMaxAge),
		HTTPTimeout:     parse(c.Timing.HTTPTimeout),
		HostReplyGrace:  parse(c.Timing.HostReplyGrace),
	}
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Storage.File = strings.TrimSpace(c.Storage.File)
	c.Storage.Key = strings.TrimSpace(c.Storage.Key)
	c.Weather.Endpoint = strings.TrimSpace(c.Weather.Endpoint)
	c.Weather.APIKey = strings.TrimSpace(c.Weather.APIKey)
	c.Battery.Endpoint = strings.TrimSpace(c.Battery.Endpoint)
	c.Launcher.URL = strings.TrimSpace(c.Launcher.URL)
	for i := range c.Schedules {
		c.Schedules[i].Spec = strings.TrimSpace(c.Schedules[i].Spec)
		c.Schedules[i].Command = strings.ToLower(strings.TrimSpace(c.Schedules[i].Command))
	}
}

func (c *Config) setDefaults() {
	// Server Defaults
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	// Storage Defaults
	if c.Storage.File == "" {
		c.Storage.File = "storage.json"
	}
	if c.Storage.Key == "" {
		c.Storage.Key = "mario-config"
	}

	// Endpoints
	if c.Weather.Endpoint == "" {
		c.Weather.Endpoint = "http://api.openweathermap.org/data/2.5/weather"
	}
	if c.Weather.RateLimit <= 0 {
		c.Weather.RateLimit = 1.0
	}
	if c.Weather.RateBurst <= 0 {
		c.Weather.RateBurst = 5
	}
	if c.Battery.Endpoint == "" {
		c.Battery.Endpoint = "http://127.0.0.1:1821/battery"
	}
	if c.Launcher.URL == "" {
		c.Launcher.URL = "http://clusterrr.com/pebble_configs/mario_w.php"
	}
	if c.Launcher.Version == "" {
		c.Launcher.Version = "4"
	}

	// Timing Defaults
	if c.Timing.RequestDelay == "" {
		c.Timing.RequestDelay = "1s"
	}
	if c.Timing.SettleDelay == "" {
		c.Timing.SettleDelay = "5s"
	}
	if c.Timing.LocationTimeout == "" {
		c.Timing.LocationTimeout = "60s"
	}
	if c.Timing.LocationMaxAge == "" {
		c.Timing.LocationMaxAge = "30m"
	}
	if c.Timing.HTTPTimeout == "" {
		c.Timing.HTTPTimeout = "0"
	}
	if c.Timing.HostReplyGrace == "" {
		c.Timing.HostReplyGrace = "5s"
	}

	// MQTT Defaults
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "companion-bridge"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "watch"
	}
}

func (c *Config) validate() error {
	timings := map[string]string{
		"request_delay":    c.Timing.RequestDelay,
		"settle_delay":     c.Timing.SettleDelay,
		"location_timeout": c.Timing.LocationTimeout,
		"location_max_age": c.Timing.LocationMaxAge,
		"http_timeout":     c.Timing.HTTPTimeout,
		"host_reply_grace": c.Timing.HostReplyGrace,
	}
	for name, v := range timings {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config error: timing.%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("config error: timing.%s must not be negative", name)
		}
	}

	for i, s := range c.Schedules {
		if s.Spec == "" {
			return fmt.Errorf("config error: schedules[%d]: spec is required", i)
		}
		if s.Command != "weather" && s.Command != "battery" {
			return fmt.Errorf("config error: schedules[%d]: unknown command %q", i, s.Command)
		}
	}

	return nil
}
