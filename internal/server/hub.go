package server

import (
	"fmt"
	"log"
	"sync"
	"time"

	"companion-bridge/internal/core"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub manages the connected host websocket clients.
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Println("[Host] WebSocket client connected.")
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		log.Println("[Host] WebSocket client disconnected.")
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes msg to every connected client and returns how many
// accepted it. Clients that fail a write are dropped.
func (h *Hub) Broadcast(msg Message) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return 0, core.ErrNoHost
	}

	delivered := 0
	var lastErr error
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("[Host] broadcast error: %v", err)
			lastErr = err
			client.Close()
			delete(h.clients, client)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return 0, fmt.Errorf("%s: %w", msg.Type, lastErr)
	}
	return delivered, nil
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
