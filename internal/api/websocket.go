package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/bioconsole/internal/infrastructure/config"
	"github.com/nerrad567/bioconsole/internal/infrastructure/logging"
	"github.com/nerrad567/bioconsole/internal/reactor"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEdit        = "edit"
	WSTypeCommit      = "commit"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// Event channels clients can subscribe to.
const (
	EventStateChanged    = "state.changed"
	EventTelemetrySample = "telemetry.sample"
)

// Fallbacks for an unset websocket configuration.
const (
	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// WSMessage is a message sent to or from a WebSocket client.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSIntentPayload is the payload of edit and commit messages. Value is
// ignored for commit.
type WSIntentPayload struct {
	Channel string   `json:"channel"`
	Value   *float64 `json:"value,omitempty"`
}

// Hub fans events out to WebSocket clients. Broadcast never blocks: a
// client whose buffer is full misses the event.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected renderer.
type WSClient struct {
	hub           *Hub
	srv           *Server
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS middleware decides on origins.
		return true
	},
}

// NewHub creates an empty hub.
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
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client. Only the caller that removes it from the
// map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends payload as an event to every client subscribed to
// channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		if client.isSubscribed(channel) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := encodeMessage(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}
	for _, client := range clients {
		client.trySend(data)
	}
}

// BroadcastSnapshot publishes a state.changed event.
func (h *Hub) BroadcastSnapshot(snap *reactor.Snapshot) {
	h.Broadcast(EventStateChanged, snap)
}

// BroadcastSample publishes a telemetry.sample event.
func (h *Hub) BroadcastSample(sample reactor.TelemetrySample) {
	h.Broadcast(EventTelemetrySample, sample)
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

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

func (h *Hub) timings() (maxSize int64, pingInterval, pongWait time.Duration) {
	maxSize = defaultWSMaxMessageSize
	pingInterval = defaultWSPingInterval
	pongWait = defaultWSPongTimeout
	if h.cfg.MaxMessageSize > 0 {
		maxSize = int64(h.cfg.MaxMessageSize)
	}
	if h.cfg.PingInterval > 0 {
		pingInterval = time.Duration(h.cfg.PingInterval) * time.Second
	}
	if h.cfg.PongTimeout > 0 {
		pongWait = time.Duration(h.cfg.PongTimeout) * time.Second
	}
	return maxSize, pingInterval, pongWait
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.Hub(),
		srv:           s,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	client.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	maxSize, pingInterval, pongWait := c.hub.timings()
	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // read errors end the loop below
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // read errors end the loop above
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	_, pingInterval, pongWait := c.hub.timings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is closing anyway
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeBadRequest, "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	case WSTypeEdit:
		c.handleEdit(msg)
	case WSTypeCommit:
		c.handleCommit(msg)
	default:
		c.sendError(msg.ID, ErrCodeBadRequest, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds event channels. Subscribing to state.changed sends
// the current snapshot straight away so a renderer can draw without
// waiting for the next change.
func (c *WSClient) handleSubscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		c.sendError(msg.ID, ErrCodeBadRequest, "invalid subscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels})

	for _, ch := range sub.Channels {
		if ch == EventStateChanged {
			if data, err := encodeMessage(WSTypeEvent, "", EventStateChanged, c.srv.session.Snapshot()); err == nil {
				c.trySend(data)
			}
		}
	}
}

func (c *WSClient) handleUnsubscribe(msg WSMessage) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		c.sendError(msg.ID, ErrCodeBadRequest, "invalid unsubscribe payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels})
}

func (c *WSClient) handleEdit(msg WSMessage) {
	var intent WSIntentPayload
	if err := json.Unmarshal(msg.Payload, &intent); err != nil || intent.Channel == "" || intent.Value == nil {
		c.sendError(msg.ID, ErrCodeBadRequest, "edit requires channel and value")
		return
	}

	view, err := c.srv.edit(context.Background(), reactor.Channel(intent.Channel), *intent.Value, sourceWebSocket)
	if err != nil {
		_, code := classifyError(err)
		c.sendError(msg.ID, code, err.Error())
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, view)
}

func (c *WSClient) handleCommit(msg WSMessage) {
	var intent WSIntentPayload
	if err := json.Unmarshal(msg.Payload, &intent); err != nil || intent.Channel == "" {
		c.sendError(msg.ID, ErrCodeBadRequest, "commit requires channel")
		return
	}

	cmd, err := c.srv.commit(context.Background(), reactor.Channel(intent.Channel), sourceWebSocket)
	if err != nil {
		_, code := classifyError(err)
		c.sendError(msg.ID, code, err.Error())
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, cmd)
}

// trySend queues data for the client. A full buffer drops the message and
// a client closed mid-broadcast is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := encodeMessage(msgType, id, "", payload)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, code, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"code": code, "message": message})
}

func encodeMessage(msgType, id, eventType string, payload any) ([]byte, error) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
