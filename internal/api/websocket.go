package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skobkin/meshbridge/internal/bus"
	"github.com/skobkin/meshbridge/internal/connectors"
)

const (
	WSTypeEvent = "event"
	WSTypeState = "state"

	wsSendBufferSize = 256
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 60 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
)

// WSMessage is the envelope of every frame sent to stream clients.
type WSMessage struct {
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Hub fans bridge events out to connected WebSocket clients. Slow clients
// drop messages instead of blocking the hub.
type Hub struct {
	server  *Server
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newHub(s *Server) *Hub {
	return &Hub{server: s, clients: make(map[*wsClient]struct{})}
}

// start relays bus traffic until ctx is done, then disconnects every client.
func (h *Hub) start(ctx context.Context, b bus.MessageBus) {
	topics := append([]string{connectors.TopicState}, connectors.EventTopics...)
	sub := b.Subscribe(topics...)
	go func() {
		defer b.Unsubscribe(sub, topics...)
		defer h.closeAll()
		h.relay(ctx, sub)
	}()
}

func (h *Hub) relay(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			switch v := raw.(type) {
			case connectors.BridgeEvent:
				h.Broadcast(WSTypeEvent, v.Kind, v)
			case connectors.BridgeState:
				h.Broadcast(WSTypeState, v.State, v)
			}
		}
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.server.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if existed {
		close(c.send)
	}
	h.server.logger.Debug("websocket client disconnected", "clients", n)
}

func (h *Hub) Broadcast(msgType, eventType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.server.logger.Error("encode websocket message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.server.logger.Debug("websocket client too slow, dropping message", "event_type", eventType)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, wsSendBufferSize)}

	// Fresh clients learn the current state without waiting for a change.
	state := s.bridge.State()
	if data, err := json.Marshal(WSMessage{Type: WSTypeState, EventType: state.State, Timestamp: time.Now().UTC().Format(time.RFC3339), Payload: state}); err == nil {
		c.send <- data
	}
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

// readPump only services control frames; the stream is one-way.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.server.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
