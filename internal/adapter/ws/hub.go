// Package ws implements the WebSocket adapter that pushes confirmation
// requests and turn outcomes to the human review surface in real time.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event types pushed to the review surface.
const (
	EventAwaitingConfirmation = "toolcall.awaiting_confirmation"
	EventCallConfirmed        = "toolcall.confirmed"
	EventCallCancelled        = "toolcall.cancelled"
	EventTurnFinalized        = "turn.finalized"
)

// conn wraps a single WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the connection and registers it with the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// BroadcastEvent marshals payload and sends it to every connected client.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("websocket marshal failed", "type", eventType, "error", err)
		return
	}
	h.broadcast(ctx, Message{Type: eventType, Payload: data})
}

func (h *Hub) broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		c.cancel()
	}
}
