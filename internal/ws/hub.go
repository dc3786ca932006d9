// Package ws owns all live WebSocket connections: registration,
// per-connection dispatch, session subscriptions, fan-out and the
// heartbeat that evicts half-open sockets.
package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/observability/metrics"
)

// MessageHandler receives every inbound frame for a client.
type MessageHandler func(c *Client, raw []byte)

// Hub is the connection registry. Connection lifetime is independent
// of session lifetime: unregistering a subscriber never ends the
// session it was watching.
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]*Client
	subscriptions map[string]string // clientID -> sessionID

	handler MessageHandler
	metrics *metrics.Metrics

	heartbeatInterval time.Duration
	clientTimeout     time.Duration

	stop chan struct{}
	once sync.Once
}

// NewHub creates an empty hub. The heartbeat interval is how often
// liveness is checked; clients silent for longer than timeout are
// evicted.
func NewHub(heartbeatInterval, clientTimeout time.Duration) *Hub {
	return &Hub{
		clients:           make(map[string]*Client),
		subscriptions:     make(map[string]string),
		metrics:           metrics.DefaultMetrics,
		heartbeatInterval: heartbeatInterval,
		clientTimeout:     clientTimeout,
		stop:              make(chan struct{}),
	}
}

// SetHandler installs the inbound message handler. Must be called
// before the first registration.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

// Register assigns an identifier to a new connection and begins
// tracking it. The caller starts the client's pumps.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		hub:         h,
		conn:        conn,
		Send:        make(chan []byte, sendBufferSize),
	}
	c.Touch()

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.metrics.RecordConnection()
	log.Info().Str("clientId", c.ID).Msg("WebSocket client connected")
	return c
}

// Unregister removes a connection from the registry. A held session
// subscription is cleared, but the session itself is untouched.
func (h *Hub) Unregister(clientID string, evicted bool) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
		if sessionID, subscribed := h.subscriptions[clientID]; subscribed {
			delete(h.subscriptions, clientID)
			log.Warn().
				Str("clientId", clientID).
				Str("sessionId", sessionID).
				Msg("Client disconnected while subscribed to a session")
		}
		close(c.Send)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.RecordDisconnection(evicted)
	log.Info().Str("clientId", clientID).Bool("evicted", evicted).Msg("WebSocket client disconnected")
}

// Get returns the client for id, or nil.
func (h *Hub) Get(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribe points the client's subscription at a session.
func (h *Hub) Subscribe(clientID, sessionID string) {
	h.mu.Lock()
	if _, ok := h.clients[clientID]; ok {
		h.subscriptions[clientID] = sessionID
	}
	h.mu.Unlock()
}

// Unsubscribe clears the client's subscription.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	delete(h.subscriptions, clientID)
	h.mu.Unlock()
}

// SubscriptionOf returns the session the client is watching, if any.
func (h *Hub) SubscriptionOf(clientID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessionID, ok := h.subscriptions[clientID]
	return sessionID, ok
}

// Subscribers returns the clients currently subscribed to a session.
func (h *Hub) Subscribers(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for clientID, sub := range h.subscriptions {
		if sub != sessionID {
			continue
		}
		if c, ok := h.clients[clientID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// SendTo queues a marshaled envelope for one client. A full buffer
// drops the message for that client only.
func (h *Hub) SendTo(clientID string, message []byte) {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.deliver(c, message)
}

// BroadcastToSession delivers a marshaled envelope to every subscriber
// of the session, each independently. Slow subscribers lose messages;
// they never block the rest.
func (h *Hub) BroadcastToSession(sessionID string, message []byte) int {
	subscribers := h.Subscribers(sessionID)
	for _, c := range subscribers {
		h.deliver(c, message)
	}
	return len(subscribers)
}

func (h *Hub) deliver(c *Client, message []byte) {
	defer func() {
		// Send can race a concurrent Unregister closing the channel;
		// a dropped message to a dying client is fine.
		if recover() != nil {
			h.metrics.DeliveryDropped.Inc()
		}
	}()

	select {
	case c.Send <- message:
		h.metrics.ResultsDelivered.Inc()
	default:
		h.metrics.DeliveryDropped.Inc()
		log.Warn().Str("clientId", c.ID).Msg("Subscriber buffer full, dropping message")
	}
}

// dispatch routes an inbound frame to the installed handler.
func (h *Hub) dispatch(c *Client, raw []byte) {
	if h.handler != nil {
		h.handler(c, raw)
	}
}

// StartHeartbeat launches the liveness monitor.
func (h *Hub) StartHeartbeat() {
	go func() {
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.evictStale()
			case <-h.stop:
				return
			}
		}
	}()
}

// evictStale force-closes connections silent beyond the timeout.
func (h *Hub) evictStale() {
	cutoff := time.Now().Add(-h.clientTimeout)

	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if c.LastActivity().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Warn().Str("clientId", c.ID).Msg("Client heartbeat timeout, terminating connection")
		if c.conn != nil {
			c.conn.Close()
		}
		h.Unregister(c.ID, true)
	}
}

// Shutdown stops the heartbeat and closes every connection.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.stop) })

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		h.Unregister(c.ID, false)
	}
}
