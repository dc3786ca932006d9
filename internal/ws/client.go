package ws

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum inbound message size. Chunks are base64 so this needs
	// headroom over the raw audio limit.
	maxMessageSize = 160 * 1024 * 1024

	// Outbound buffer per subscriber. A full buffer drops messages for
	// that subscriber only; it never blocks the others.
	sendBufferSize = 256
)

// Client represents one connected WebSocket peer. The transport handle
// is owned by the read/write pumps; everything else goes through the
// hub.
type Client struct {
	ID          string
	ConnectedAt time.Time

	hub  *Hub
	conn *websocket.Conn

	// Send carries marshaled envelopes to the write pump.
	Send chan []byte

	lastActivity atomic.Int64
}

// Touch records inbound activity for heartbeat bookkeeping.
func (c *Client) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent inbound message or
// pong.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// ReadPump reads inbound frames and hands them to the hub's message
// handler. It exits on any read error and unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c.ID, false)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.Touch()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("clientId", c.ID).Msg("WebSocket read error")
			}
			return
		}
		c.Touch()
		c.hub.dispatch(c, raw)
	}
}

// WritePump serializes all writes to the connection: queued envelopes
// from Send and periodic pings. One writer per connection, as the
// transport requires.
func (c *Client) WritePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("clientId", c.ID).Msg("WebSocket write error")
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
