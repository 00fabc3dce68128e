package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/logging"
)

// Message types exchanged on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelStateChanged carries every applied device state change.
	ChannelStateChanged = "device.state_changed"

	wsSendBufferSize = 256
)

// WSMessage is a frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is a frame received from a client. The payload is decoded
// once the type is known.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans device state changes out to connected event-stream clients.
//
// It is a dispatch.Listener: subscribe it on the responder's dispatcher and
// every applied change reaches clients subscribed to ChannelStateChanged.
// Slow clients drop frames instead of holding up the dispatcher.
type Hub struct {
	keepalive keepalive
	readLimit int64
	logger    *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// keepalive holds the ping cadence derived from config.WebSocketConfig.
type keepalive struct {
	ping time.Duration
	pong time.Duration
}

// readWindow is how long a connection may stay silent before it is dropped.
func (k keepalive) readWindow() time.Duration { return k.ping + k.pong }

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		keepalive: keepalive{
			ping: time.Duration(cfg.PingInterval) * time.Second,
			pong: time.Duration(cfg.PongTimeout) * time.Second,
		},
		readLimit: int64(cfg.MaxMessageSize),
		logger:    logger,
		clients:   make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close() //nolint:errcheck // Shutting down
	}
}

// HandleStateChange implements dispatch.Listener. It never fails.
func (h *Hub) HandleStateChange(_ context.Context, e dispatch.Event) error {
	h.Broadcast(ChannelStateChanged, e)
	return nil
}

// Broadcast sends payload to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	// Client subscription locks are taken after the hub lock is released.
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.subscribed(channel) {
			c.enqueue(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client", c.id, "clients", n)
}

// remove drops c. Whoever removes c from the map closes its send channel,
// so Run and a failing read loop never both close it.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "client", c.id, "clients", n)
	}
}

// wsClient is one event-stream connection.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

// handleWebSocket upgrades the request and attaches the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:       uuid.NewString(),
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}

func (c *wsClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close() //nolint:errcheck // Connection is done
	}()

	window := c.hub.keepalive.readWindow()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(window)) }

	c.conn.SetReadLimit(c.hub.readLimit)
	extend() //nolint:errcheck // A failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // A failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	ka := c.hub.keepalive
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Connection is done
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(ka.pong)) //nolint:errcheck // Write reports the failure
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Best effort goodbye
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateChannels(req)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *wsClient) updateChannels(req wsRequest) {
	var p WSSubscribePayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			c.reply(req.ID, WSTypeError, errorPayload("invalid "+req.Type+" payload"))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range p.Channels {
		if req.Type == WSTypeSubscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	c.hub.logger.Debug("websocket channels updated", "client", c.id, "action", req.Type, "channels", p.Channels)
	c.reply(req.ID, WSTypeResponse, map[string][]string{req.Type + "d": p.Channels})
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues data without blocking. A full buffer drops the frame and a
// channel closed by a concurrent disconnect is ignored.
func (c *wsClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Send on a channel closed by remove or Run
	}()

	select {
	case c.send <- data:
	default:
	}
}

func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
