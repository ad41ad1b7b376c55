package agent

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"companion-bridge/internal/battery"
	"companion-bridge/internal/config"
	"companion-bridge/internal/core"
	"companion-bridge/internal/launcher"
	"companion-bridge/internal/location"
	"companion-bridge/internal/messenger"
	"companion-bridge/internal/mqtt"
	"companion-bridge/internal/options"
	"companion-bridge/internal/scheduler"
	"companion-bridge/internal/server"
	"companion-bridge/internal/storage"
	"companion-bridge/internal/weather"

	"golang.org/x/time/rate"
)

// Payload keys the watch sets to ask for a refresh. Only their presence matters.
const (
	weatherRequestKey = "weather_request"
	batteryRequestKey = "battery_request"
)

// minConfigResponse is the length, in UTF-16 code units as the configuration
// page counts it, a webview response must exceed to be treated as a document.
const minConfigResponse = 5

type fetchFunc func(ctx context.Context) (core.DeviceMessage, error)

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	timing config.Durations
	wg     sync.WaitGroup

	options  *core.OptionsState
	eventBus *core.EventBus
	kv       storage.KV

	events   core.HostEventChannel
	commands core.CommandChannel
	outcomes chan core.Outcome

	// after schedules f once after d. Timers are never cancelled.
	after func(d time.Duration, f func())

	messenger *messenger.Messenger
	store     *options.Store
	launcher  *launcher.Launcher
	resolver  *location.Resolver
	battery   *battery.Fetcher
	scheduler *scheduler.Scheduler

	server     *server.Server
	mqttClient *mqtt.Client
}

// NewAgent builds the bridge: file storage, the host websocket server and the
// optional MQTT mirror.
func NewAgent(cfg *config.Config) (*Agent, error) {
	kv, err := storage.NewFileStore(cfg.Storage.File)
	if err != nil {
		return nil, err
	}

	a := newAgent(cfg, kv)

	a.server = server.NewServer(
		a.events,
		a.options,
		a.eventBus,
		cfg.Server.Port,
		cfg.Server.AllowedOrigins,
		a.timing.HostReplyGrace,
	)

	a.mqttClient = mqtt.NewClient(cfg, a.eventBus, a.events)

	a.wire(a.server)

	if cfg.Weather.APIKey == "" {
		log.Println("[Agent] Warning: weather.api_key is empty, weather requests will be rejected upstream.")
	}

	return a, nil
}

// newAgent creates the shared state. Components are attached by wire.
func newAgent(cfg *config.Config, kv storage.KV) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		timing:   cfg.Durations(),
		options:  core.NewOptionsState(core.DefaultOptions()),
		eventBus: core.NewEventBus(),
		kv:       kv,
		events:   make(core.HostEventChannel, 64),
		commands: make(core.CommandChannel, 20),
		outcomes: make(chan core.Outcome, 20),
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// wire builds every component on top of host.
func (a *Agent) wire(host core.Host) {
	cfg := a.config
	httpClient := &http.Client{Timeout: a.timing.HTTPTimeout}

	a.messenger = messenger.New(host, a.eventBus)

	a.store = options.NewStore(a.kv, cfg.Storage.Key, a.options, a.messenger, a.eventBus)
	a.store.OnWeatherEnabled = func() {
		a.schedule(a.timing.SettleDelay, core.CmdRequestWeather)
	}

	a.launcher = launcher.New(host, a.options, cfg.Launcher.URL, cfg.Launcher.Version)

	limiter := rate.NewLimiter(rate.Limit(cfg.Weather.RateLimit), cfg.Weather.RateBurst)
	weatherFetcher := weather.NewFetcher(cfg.Weather.Endpoint, cfg.Weather.APIKey, a.options.Units, httpClient, limiter)

	a.resolver = location.NewResolver(host, weatherFetcher, core.PositionOptions{
		Timeout:    a.timing.LocationTimeout,
		MaximumAge: a.timing.LocationMaxAge,
	})

	a.battery = battery.NewFetcher(cfg.Battery.Endpoint, httpClient)

	a.scheduler = scheduler.NewScheduler(a.commands, cfg.Schedules)
}

// Run starts the peripherals and blocks in the dispatcher loop until Shutdown.
func (a *Agent) Run() {
	if a.mqttClient != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.mqttClient.Run(a.ctx)
		}()

		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				log.Printf("[Agent] MQTT Setup Error: %v", err)
			}
		}()
	}

	a.scheduler.Start()

	if a.server != nil {
		log.Printf("Bridge listening on ws://localhost:%s/ws", a.config.Server.Port)
		go func() {
			if err := a.server.ListenAndServe(); err != nil {
				log.Printf("Server error: %v", err)
			}
		}()
	}

	log.Println("Bridge dispatcher ready.")
	a.loop()
}

// loop is the single dispatcher. Every options mutation and device send
// happens on this goroutine.
func (a *Agent) loop() {
	for {
		select {
		case <-a.ctx.Done():
			log.Println("Bridge dispatcher shutting down...")
			return
		case ev := <-a.events:
			a.handleEvent(ev)
		case cmd := <-a.commands:
			a.handleCommand(cmd)
		case out := <-a.outcomes:
			a.handleOutcome(out)
		}
	}
}

func (a *Agent) handleEvent(ev core.HostEvent) {
	log.Printf("[Agent] Host event: %s", ev.Type)

	switch ev.Type {
	case core.HostReady:
		a.store.Load()

	case core.HostShowConfiguration:
		a.launcher.Open(a.ctx)

	case core.HostWebviewClosed:
		a.handleWebviewClosed(ev.Response)

	case core.HostAppMessage:
		if _, ok := ev.Payload[weatherRequestKey]; ok {
			a.schedule(a.timing.RequestDelay, core.CmdRequestWeather)
		}
		if _, ok := ev.Payload[batteryRequestKey]; ok {
			a.schedule(a.timing.RequestDelay, core.CmdRequestBattery)
		}

	default:
		log.Printf("[Agent] Unknown host event: %s", ev.Type)
	}
}

// handleWebviewClosed saves the response when it looks like a JSON object.
// Anything else means the page closed without a result.
func (a *Agent) handleWebviewClosed(response string) {
	decoded, err := url.PathUnescape(response)
	if err != nil {
		log.Printf("[Agent] Cannot decode webview response: %v", err)
		return
	}

	if len(utf16.Encode([]rune(decoded))) <= minConfigResponse || !strings.HasPrefix(decoded, "{") || !strings.HasSuffix(decoded, "}") {
		log.Printf("[Agent] Configuration closed without a result: %q", decoded)
		return
	}

	a.store.Save(decoded)
}

// schedule posts a command after d. Timers firing after shutdown are discarded.
func (a *Agent) schedule(d time.Duration, t core.CommandType) {
	a.after(d, func() {
		if a.ctx.Err() != nil {
			return
		}
		select {
		case a.commands <- core.Command{Type: t}:
		case <-a.ctx.Done():
		}
	})
}

func (a *Agent) handleCommand(cmd core.Command) {
	switch cmd.Type {
	case core.CmdRequestWeather:
		a.runTask(cmd.Type, a.resolver.ResolveAndFetchWeather)
	case core.CmdRequestBattery:
		a.runTask(cmd.Type, a.battery.Fetch)
	default:
		log.Printf("[Agent] Unknown command type: %s", cmd.Type)
	}
}

// runTask runs fetch on its own goroutine and hands the outcome back to the loop.
func (a *Agent) runTask(task core.CommandType, fetch fetchFunc) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		msg, err := fetch(a.ctx)
		select {
		case a.outcomes <- core.Outcome{Task: task, Message: msg, Err: err}:
		case <-a.ctx.Done():
		}
	}()
}

func (a *Agent) handleOutcome(out core.Outcome) {
	if out.Err != nil {
		log.Printf("[Agent] %s request failed: %v", out.Task, out.Err)
		return
	}
	a.messenger.Send(out.Message)
}

func (a *Agent) Shutdown() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	a.cancel()
	a.wg.Wait()
}
