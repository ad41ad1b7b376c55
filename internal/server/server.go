package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"companion-bridge/internal/core"

	"github.com/gorilla/websocket"
)

// Server exposes the host websocket endpoint and implements core.Host on top of it.
type Server struct {
	Hub        *Hub
	events     core.HostEventChannel
	options    *core.OptionsState
	eventBus   *core.EventBus
	httpServer *http.Server
	replyGrace time.Duration

	allowedOrigins []string
	upgrader       websocket.Upgrader

	nextID    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan Command
}

// NewServer creates a new server instance. eventBus may be nil.
func NewServer(events core.HostEventChannel, options *core.OptionsState, eventBus *core.EventBus, port string, allowedOrigins []string, replyGrace time.Duration) *Server {
	s := &Server{
		Hub:            NewHub(),
		events:         events,
		options:        options,
		eventBus:       eventBus,
		replyGrace:     replyGrace,
		allowedOrigins: allowedOrigins,
		pending:        make(map[uint64]chan Command),
	}

	if len(allowedOrigins) == 0 {
		log.Println("[Host] Warning: WebSocket CheckOrigin is disabled.")
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser host shim
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[Host] WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/options", s.handleOptions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

// SendAppMessage pushes a device message to the host. It fails when no host is connected.
func (s *Server) SendAppMessage(msg core.DeviceMessage) error {
	_, err := s.Hub.Broadcast(NewMessage(FrameSendAppMessage, msg))
	return err
}

// OpenURL asks the host to open url in its configuration webview.
func (s *Server) OpenURL(url string) error {
	_, err := s.Hub.Broadcast(NewMessage(FrameOpenURL, openURLRequest{URL: url}))
	return err
}

// ActiveWatchInfo asks the host which watch is paired.
func (s *Server) ActiveWatchInfo(ctx context.Context) (core.WatchInfo, error) {
	raw, err := s.request(ctx, FrameGetActiveWatchInfo, nil, s.replyGrace)
	if err != nil {
		return core.WatchInfo{}, err
	}

	var info core.WatchInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return core.WatchInfo{}, fmt.Errorf("%s: %w: %v", FrameGetActiveWatchInfo, core.ErrParse, err)
	}
	return info, nil
}

// CurrentPosition asks the host for a position fix. The host enforces
// opts.Timeout; we wait that long plus the reply grace period.
func (s *Server) CurrentPosition(ctx context.Context, opts core.PositionOptions) (core.Coordinates, error) {
	payload := positionRequest{
		Timeout:    opts.Timeout.Milliseconds(),
		MaximumAge: opts.MaximumAge.Milliseconds(),
	}

	raw, err := s.request(ctx, FrameGetCurrentPosition, payload, opts.Timeout+s.replyGrace)
	if err != nil {
		return core.Coordinates{}, err
	}

	var c core.Coordinates
	if err := json.Unmarshal(raw, &c); err != nil {
		return core.Coordinates{}, fmt.Errorf("%s: %w: %v", FrameGetCurrentPosition, core.ErrParse, err)
	}
	return c, nil
}

// request sends a frame with a fresh id and waits for the matching reply.
func (s *Server) request(ctx context.Context, frameType string, payload any, timeout time.Duration) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	replies := make(chan Command, 1)

	s.pendingMu.Lock()
	s.pending[id] = replies
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if _, err := s.Hub.Broadcast(Message{Type: frameType, ID: id, Payload: payload}); err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case reply := <-replies:
		if reply.Error != "" {
			return nil, errors.New(reply.Error)
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", frameType, ctx.Err())
	}
}

func (s *Server) deliverReply(cmd Command) {
	s.pendingMu.Lock()
	replies, ok := s.pending[cmd.ID]
	s.pendingMu.Unlock()

	if !ok {
		log.Printf("[Host] Reply for unknown request %d ignored", cmd.ID)
		return
	}
	select {
	case replies <- cmd:
	default:
		// another host already answered
	}
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.options.Current())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Host] WebSocket upgrade error: %v", err)
		return
	}

	s.Hub.Register(conn)
	s.publishConnected()

	defer func() {
		s.Hub.Unregister(conn)
		s.publishConnected()
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd Command
		if err := json.Unmarshal(msgBytes, &cmd); err != nil {
			log.Printf("[Host] Error unmarshalling frame: %v", err)
			continue
		}
		s.handleFrame(cmd)
	}
}

func (s *Server) handleFrame(cmd Command) {
	switch cmd.Type {
	case FrameReady:
		s.emit(core.HostEvent{Type: core.HostReady})

	case FrameShowConfiguration:
		s.emit(core.HostEvent{Type: core.HostShowConfiguration})

	case FrameWebviewClosed:
		s.emit(core.HostEvent{Type: core.HostWebviewClosed, Response: cmd.Response})

	case FrameAppMessage:
		payload := map[string]any{}
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				log.Printf("[Host] Bad appmessage payload: %v", err)
				return
			}
			if payload == nil {
				payload = map[string]any{}
			}
		}
		s.emit(core.HostEvent{Type: core.HostAppMessage, Payload: payload})

	case FrameReply:
		s.deliverReply(cmd)

	default:
		log.Printf("[Host] Unknown frame type: %s", cmd.Type)
	}
}

// emit hands an event to the dispatcher without blocking the reader, so
// replies keep flowing even while the dispatcher waits on one.
func (s *Server) emit(ev core.HostEvent) {
	select {
	case s.events <- ev:
	default:
		log.Printf("[Host] Event queue full, dropping %s", ev.Type)
	}
}

func (s *Server) publishConnected() {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(core.Event{Type: core.HostConnectedEvent, Payload: s.Hub.Count() > 0})
}
