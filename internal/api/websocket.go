package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weft-home/weft/internal/infrastructure/config"
	"github.com/weft-home/weft/internal/infrastructure/logging"
	"github.com/weft-home/weft/internal/trait"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelPropertyChanged carries live property change events.
const ChannelPropertyChanged = "property.changed"

// wsSendBuffer is the per-client outbound queue. A client that falls
// this far behind starts losing events rather than stalling the hub.
const wsSendBuffer = 256

// WSMessage is the JSON frame exchanged with WebSocket clients.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels a subscribe or unsubscribe
// frame applies to.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inboundFrame is the client-to-server shape of WSMessage. The payload
// stays raw until the frame type says how to decode it.
type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks connected WebSocket clients and fans events out to them.
// It implements the history sink interface, so the recorder that
// writes property history feeds the hub too.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.shutdown()
	}
	h.mu.Unlock()
}

// Broadcast delivers an event frame to every client subscribed to the
// channel. Slow clients drop the frame rather than block the caller.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("websocket event marshal failed", "channel", channel, "error", err)
		return
	}

	for _, c := range h.snapshot() {
		if c.subscribed(channel) {
			c.enqueue(data)
		}
	}
}

// WritePropertyChange broadcasts one property change on the
// property.changed channel.
func (h *Hub) WritePropertyChange(endpointID string, key trait.PropertyKey, value any, at time.Time) {
	h.Broadcast(ChannelPropertyChanged, map[string]any{
		"endpoint":  endpointID,
		"section":   key.Section.String(),
		"trait":     key.Trait,
		"property":  key.Name,
		"path":      "/" + endpointID + "/" + key.String(),
		"value":     value,
		"timestamp": at.UTC().Format(time.RFC3339),
	})
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

func (h *Hub) detach(c *wsClient) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if known {
		c.shutdown()
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// snapshot copies the client set so broadcasting never holds the hub
// lock while touching per-client state.
func (h *Hub) snapshot() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering happens in the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and starts the client's
// read and write loops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		channels: make(map[string]struct{}),
	}
	s.hub.attach(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// wsClient is one connected browser or UI process.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	closed   bool
	channels map[string]struct{}
}

// enqueue hands a frame to the write loop. Closed clients and full
// queues drop the frame.
func (c *wsClient) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// shutdown closes the send channel exactly once. The write loop sees
// the close and tears the connection down.
func (c *wsClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Any frame counts as liveness, browsers do not always answer
		// protocol pings.
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleFrame(data)
	}
}

func (c *wsClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch frame.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(frame)
	case WSTypePing:
		c.reply(frame.ID, WSTypePong, nil)
	default:
		c.reply(frame.ID, WSTypeError, map[string]string{"message": "unknown message type: " + frame.Type})
	}
}

func (c *wsClient) handleSubscription(frame inboundFrame) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(frame.Payload, &sub); err != nil {
		c.reply(frame.ID, WSTypeError, map[string]string{"message": "invalid " + frame.Type + " payload"})
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if frame.Type == WSTypeSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	result := "unsubscribed"
	if frame.Type == WSTypeSubscribe {
		result = "subscribed"
	}
	c.reply(frame.ID, WSTypeResponse, map[string]any{result: sub.Channels})
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
