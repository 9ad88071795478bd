package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"orderstream/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max inbound frame size
	maxMessageSize = 64 * 1024 // 64 KB

	// Per-client outbound buffer depth
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Validate origin in production
		return true
	},
}

// Client is one connection's server-side record. Identity and room membership
// are written only while the hub's lock is held.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	id       string
	userID   string
	userType string
	rooms    map[string]bool
}

// ID returns the connection identifier assigned on accept.
func (c *Client) ID() string {
	return c.id
}

// Enqueue pushes an already-serialized frame onto the client's send buffer
// without blocking. Used for per-connection replies (acks). The registry
// check under the hub lock keeps the enqueue from racing a concurrent close
// of the send channel.
func (c *Client) Enqueue(payload []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if _, ok := c.hub.conns[c.id]; !ok {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump pumps messages from the WebSocket to the hub. One per connection;
// exits when the transport closes for any reason.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("[CLIENT] unexpected close", "conn", c.id, "user", c.userID, "error", err)
			}
			break
		}

		c.handleClientMessage(message)
	}
}

// WritePump pumps frames from the hub to the WebSocket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("[CLIENT] write failed", "conn", c.id, "user", c.userID, "error", err)
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

// handleClientMessage parses one inbound frame and dispatches on its type.
// Malformed input is logged and dropped; it never tears down the connection.
func (c *Client) handleClientMessage(message []byte) {
	var msg models.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Error("[CLIENT] error unmarshaling message", "conn", c.id, "error", err)
		return
	}

	if msg.Type == "" {
		slog.Warn("[CLIENT] no 'type' field in message", "conn", c.id)
		return
	}

	switch msg.Type {
	case models.TypeAuthenticate:
		if msg.UserID == "" || msg.UserType == "" {
			slog.Warn("[CLIENT] authenticate missing userId or userType", "conn", c.id)
			return
		}
		c.hub.authenticate(c, msg.UserID, msg.UserType)
		c.reply(models.NewAuthAck(msg.UserID, msg.UserType))

	case models.TypeJoinOrder:
		if msg.OrderID == "" {
			slog.Warn("[CLIENT] join_order missing orderId", "conn", c.id)
			return
		}
		c.hub.joinOrder(c, msg.OrderID)
		c.reply(models.NewJoinedOrderAck(msg.OrderID))

	default:
		if c.hub.generic != nil {
			c.hub.generic(c, msg.Type, message)
			return
		}
		slog.Warn("[CLIENT] unknown message type", "type", msg.Type, "conn", c.id)
	}
}

func (c *Client) reply(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("[CLIENT] failed to marshal reply", "conn", c.id, "error", err)
		return
	}
	c.Enqueue(payload)
}
