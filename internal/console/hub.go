package console

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fleetdesk/fleetdesk-client/internal/device"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/config"
	"github.com/fleetdesk/fleetdesk-client/internal/infrastructure/logging"
	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// Subscription operations a client may send.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// ChannelStats carries every new statistics snapshot.
const ChannelStats = "stats"

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// Fallbacks for a zero WebSocketConfig.
const (
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// Request is a client message: {"op":"subscribe","channels":["stats"]}.
type Request struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

// Frame is a hub message. Events carry Channel and Data; answers to a
// Request carry Op and Channels; failures carry Error.
type Frame struct {
	Channel   string   `json:"channel,omitempty"`
	Op        string   `json:"op,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Error     string   `json:"error,omitempty"`
	Timestamp string   `json:"timestamp"`
	Data      any      `json:"data,omitempty"`
}

// Hub fans realtime events out to local websocket clients. A channel is
// an event type such as "device_update", or ChannelStats. Clients pick
// channels with ?channels=a,b on connect or with a Request later.
type Hub struct {
	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration
	logger         *logging.Logger

	// mu guards clients. Sends to a client's channel happen under the
	// read lock and closes under the write lock, so a send never races
	// a close.
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

// NewHub creates a new hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongTimeout:    time.Duration(cfg.PongTimeout) * time.Second,
		logger:         logger,
		clients:        make(map[*wsClient]struct{}),
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongTimeout <= 0 {
		h.pongTimeout = defaultPongTimeout
	}
	return h
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.DropClients()
}

// HandleEvent implements listener.Listener by broadcasting ev on the
// channel named by its type.
func (h *Hub) HandleEvent(ev listener.Event) error {
	if ev.Type() == "" {
		return nil
	}
	h.Broadcast(ev.Type(), map[string]any(ev))
	return nil
}

// BroadcastStats publishes a statistics snapshot. Pass it to
// device.Cache.OnStatsReplaced.
func (h *Hub) BroadcastStats(stats device.Stats) {
	h.Broadcast(ChannelStats, stats)
}

// Broadcast sends payload to every client subscribed to channel. Slow
// clients whose buffer is full miss the message.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Channel:   channel,
		Timestamp: now(),
		Data:      payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		if client.subscribed(channel) && h.sendLocked(client, data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// DropClients disconnects every client. The console calls it when the
// session ends so no subscriber outlives the sign-in that admitted it.
func (h *Hub) DropClients() {
	h.mu.Lock()
	n := len(h.clients)
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	if n > 0 {
		h.logger.Debug("websocket clients dropped", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", n)
}

// unregister removes client and closes its send channel. It is a no-op
// for a client already dropped.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", n)
	}
}

// reply queues data for a single client if it is still registered.
func (h *Hub) reply(client *wsClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; ok {
		h.sendLocked(client, data)
	}
}

// sendLocked must be called with h.mu held.
func (h *Hub) sendLocked(client *wsClient, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		h.logger.Debug("websocket client buffer full, dropping message", "client_id", client.id)
		return false
	}
}

// handleEvents upgrades GET /events to a hub connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:       uuid.NewString(),
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
	if q := r.URL.Query().Get("channels"); q != "" {
		client.update(OpSubscribe, strings.Split(q, ","))
	}

	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump applies client requests until the connection fails, then
// unregisters the client.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	deadline := c.hub.pingInterval + c.hub.pongTimeout
	c.conn.SetReadLimit(c.hub.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.hub.reply(c, frame(Frame{Error: "invalid JSON message"}))
			continue
		}
		c.hub.reply(c, c.handleRequest(req))
	}
}

// writePump drains the send channel and keeps the connection alive with
// ping frames. A closed send channel ends the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		msgType, data := websocket.PingMessage, []byte(nil)
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			msgType, data = websocket.TextMessage, message
		case <-ticker.C:
		}

		//nolint:errcheck // Best-effort deadline; write error caught below
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongTimeout))
		if err := c.conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

// handleRequest applies req and returns the encoded answer.
func (c *wsClient) handleRequest(req Request) []byte {
	switch req.Op {
	case OpSubscribe, OpUnsubscribe:
		c.update(req.Op, req.Channels)
		return frame(Frame{Op: req.Op, Channels: c.subscriptions()})
	default:
		return frame(Frame{Op: req.Op, Error: "unknown op: " + req.Op})
	}
}

func (c *wsClient) update(op string, channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if op == OpSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// subscriptions returns the client's channels, sorted.
func (c *wsClient) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

func frame(f Frame) []byte {
	if f.Timestamp == "" {
		f.Timestamp = now()
	}
	data, _ := json.Marshal(f) //nolint:errcheck // Frame fields always marshal
	return data
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
