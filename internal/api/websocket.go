package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/maddy52/whatsappweb/internal/infrastructure/logging"
	"github.com/maddy52/whatsappweb/internal/session"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsPingInterval is how often protocol-level pings are sent.
	wsPingInterval = 30 * time.Second

	// wsPongTimeout is how long to wait for a pong before dropping the client.
	wsPongTimeout = 60 * time.Second

	// wsMaxMessageSize caps inbound client messages; clients only listen.
	wsMaxMessageSize = 512
)

// transitionEvent is the JSON body pushed on every lifecycle transition.
type transitionEvent struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	Session   session.Status `json:"session"`
	Timestamp string         `json:"timestamp"`
}

// Hub fans session lifecycle transitions out to connected event-stream
// clients. Each client watches exactly one tenant.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// wsClient is one connected event-stream subscriber.
type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	tenantID string
}

// upgrader configures the WebSocket upgrader. Origin checking is handled
// by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// register adds a client to the hub.
func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("event stream client connected",
		"tenant", client.tenantID,
		"clients", h.ClientCount(),
	)
}

// unregister removes a client. Only the goroutine that removes the client
// from the map closes the send channel, preventing double-close panics.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
}

// BroadcastTransition pushes one lifecycle transition to every client
// watching that tenant.
func (h *Hub) BroadcastTransition(status session.Status, event string) {
	data, err := json.Marshal(transitionEvent{
		Type:      "session.transition",
		Event:     event,
		Session:   status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("marshalling transition event", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.tenantID == status.TenantID {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients so their write pumps exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}

// handleEvents upgrades the connection and streams the tenant's lifecycle
// transitions. Auth is via the key query parameter because browsers cannot
// set headers on WebSocket upgrades.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.validAPIKey(r.URL.Query().Get("key")) {
		writeUnauthorized(w, "invalid or missing key query parameter")
		return
	}

	tenantID := chi.URLParam(r, "id")
	if err := session.ValidateTenantID(tenantID); err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		tenantID: tenantID,
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()

	// Push the current snapshot so subscribers need not race a GET against
	// the stream.
	if status, err := s.manager.Status(tenantID); err == nil {
		if data, merr := json.Marshal(transitionEvent{
			Type:      "session.snapshot",
			Session:   status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); merr == nil {
			client.trySend(data)
		}
	}
}

// readPump drains inbound messages to process control frames; the stream
// is one-way, so payloads are discarded.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump writes queued events and keepalive pings to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsPongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data for the client, dropping it if the client is gone
// or its buffer is full.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel during shutdown
	}()

	select {
	case c.send <- data:
	default:
	}
}
