package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/config"
	"github.com/nerrad567/controlnet-core/internal/infrastructure/logging"
)

// Message types on the event stream.
const (
	WSTypeHello       = "hello"
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll subscribes a client to every event.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

// WSMessage is one frame on the event stream.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a client frame. The payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload lists event names such as "alarmRaised", or "*".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSHello is sent once after the upgrade.
type WSHello struct {
	Mode       string   `json:"mode"`
	Version    string   `json:"version,omitempty"`
	Subscribed []string `json:"subscribed"`
	Events     []string `json:"events"`
}

// safetyEvents must reach every subscriber. A client too slow to take one
// is disconnected instead of silently missing it.
var safetyEvents = map[string]bool{
	string(eventbus.SafetyInterlockTriggered):   true,
	string(eventbus.EmergencyStopActivated):     true,
	string(eventbus.EmergencyShutdownCompleted): true,
	string(eventbus.EmergencyModeReset):         true,
}

// Hub fans runtime events out to WebSocket clients.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	dropped atomic.Int64
	evicted atomic.Int64
}

// WSClient is one connected stream.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the caller that actually removes it
// closes its send channel, so concurrent disconnects cannot double-close.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Publish streams a runtime event. It never blocks, so it can be used as a
// bus handler.
func (h *Hub) Publish(ev eventbus.Event) {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.broadcast(WSMessage{
		Type:      WSTypeEvent,
		EventType: string(ev.Name),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Payload:   ev.Payload,
	})
}

// Broadcast streams an ad hoc payload on channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.broadcast(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

func (h *Hub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "event", msg.EventType, "error", err)
		return
	}

	// Hub and client locks are never held together.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	critical := safetyEvents[msg.EventType]
	for _, c := range clients {
		if !c.isSubscribed(msg.EventType) || c.trySend(data) {
			continue
		}
		if critical {
			h.evict(c, msg.EventType)
			continue
		}
		h.dropped.Add(1)
	}
}

// evict disconnects a client that could not take a safety event. It will
// reconnect and resynchronise from /status.
func (h *Hub) evict(c *WSClient, event string) {
	h.evicted.Add(1)
	h.logger.Warn("websocket client too slow for safety event, disconnecting", "event", event)
	h.Unregister(c)
	if c.conn != nil {
		c.conn.Close()
	}
}

// Dropped counts non-safety events skipped because a client buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Evicted counts clients disconnected for missing a safety event.
func (h *Hub) Evicted() int64 {
	return h.evicted.Load()
}

// ClientCount returns the number of connected clients.
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
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// checkOrigin applies the CORS origin list to browser upgrades. Clients
// that send no Origin (SCADA gateways, CLIs) are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.isAllowedOrigin(origin)
}

// handleWebSocket upgrades to the event stream. ?events=a,b subscribes up
// front, e.g. ?events=alarmRaised,emergencyStopActivated or ?events=*.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	subscribed := []string{}
	for _, ch := range strings.Split(r.URL.Query().Get("events"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			client.subscriptions[ch] = struct{}{}
			subscribed = append(subscribed, ch)
		}
	}

	events := make([]string, 0, len(eventbus.AllNames))
	for _, n := range eventbus.AllNames {
		events = append(events, string(n))
	}
	client.sendResponse("", WSTypeHello, WSHello{
		Mode:       string(s.runtime.Mode()),
		Version:    s.version,
		Subscribed: subscribed,
		Events:     events,
	})

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck // best effort
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck // best effort
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // ping error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.sendError(req.ID, "invalid "+req.Type+" payload")
			return
		}
		c.updateSubscriptions(req.Type == WSTypeSubscribe, sub.Channels)
		key := "unsubscribed"
		if req.Type == WSTypeSubscribe {
			key = "subscribed"
		}
		c.sendResponse(req.ID, WSTypeResponse, map[string]any{key: sub.Channels})
	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func (c *WSClient) updateSubscriptions(add bool, channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
}

// trySend queues data without blocking and reports whether it fit. A send
// racing a disconnect (closed channel) is absorbed.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = true
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[WSChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
