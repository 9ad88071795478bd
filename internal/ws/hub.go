package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"orderstream/internal/models"
)

// GenericHandler receives inbound messages whose type the hub does not handle
// itself. It runs on the owning client's read goroutine.
type GenericHandler func(c *Client, msgType string, raw []byte)

type roomMessage struct {
	orderID string
	payload []byte
}

type userMessage struct {
	userID  string
	payload []byte
}

// Hub owns the connection registry, the per-order rooms, and the per-user
// connection index. Rooms and the user index hold references only; the
// registry is the single owner of a connection's lifecycle.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
	rooms map[string]map[*Client]bool
	users map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	direct     chan userMessage

	// generic handles inbound message types outside the channel protocol.
	generic GenericHandler
}

func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 64),
		direct:     make(chan userMessage, 64),
	}
}

// SetGenericHandler installs the fallback for unrecognized message types.
// Must be called before Run.
func (h *Hub) SetGenericHandler(fn GenericHandler) {
	h.generic = fn
}

// Run drives registration and fan-out until ctx is cancelled, then closes
// every active connection.
func (h *Hub) Run(ctx context.Context) {
	slog.Info("[HUB] starting hub event loop")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg.orderID, msg.payload)

		case msg := <-h.direct:
			h.sendToUser(msg.userID, msg.payload)
		}
	}
}

// Broadcast delivers payload to every connection currently joined to the
// order's room. Delivery is best-effort and non-blocking per recipient.
func (h *Hub) Broadcast(orderID string, payload []byte) {
	h.broadcast <- roomMessage{orderID: orderID, payload: payload}
}

// SendToUser delivers payload to every connection authenticated as userID.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.direct <- userMessage{userID: userID, payload: payload}
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomMembers returns the number of connections joined to an order's room.
func (h *Hub) RoomMembers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// UserConnections returns the number of connections bound to a user.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// RoomUsers returns the user ids of authenticated connections in a room.
func (h *Hub) RoomUsers(orderID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := []string{}
	for client := range h.rooms[orderID] {
		if client.userID != "" {
			users = append(users, client.userID)
		}
	}
	return users
}

// --- internal ---------------------------------------------------------------

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.conns[client.id] = client
	if client.userID != "" {
		h.indexUserLocked(client)
	}
	total := len(h.conns)
	h.mu.Unlock()

	slog.Info("[HUB] client registered", "conn", client.id, "user", client.userID, "total", total)

	// Handshake ack carries the connection id the client is known by. Sent
	// from the loop so it is the first frame on the wire.
	if payload, err := json.Marshal(models.NewConnectionAck(client.id)); err == nil {
		h.trySend(client, payload)
	}
}

// authenticate binds an identity to the connection. Re-authentication
// overwrites the previous identity and re-indexes the connection.
func (h *Hub) authenticate(client *Client, userID, userType string) {
	h.mu.Lock()
	if client.userID != "" {
		h.dropUserIndexLocked(client)
	}
	client.userID = userID
	client.userType = userType
	h.indexUserLocked(client)
	h.mu.Unlock()

	slog.Info("[HUB] client authenticated", "conn", client.id, "user", userID, "userType", userType)
}

// joinOrder adds the connection to the order's room, creating it on first
// join. Joining does not require prior authentication.
func (h *Hub) joinOrder(client *Client, orderID string) {
	h.mu.Lock()
	if h.rooms[orderID] == nil {
		h.rooms[orderID] = make(map[*Client]bool)
	}
	h.rooms[orderID][client] = true
	client.rooms[orderID] = true
	members := len(h.rooms[orderID])
	h.mu.Unlock()

	slog.Info("[HUB] client joined order room", "conn", client.id, "order", orderID, "members", members)
}

// removeClient takes the connection out of the registry, every room it joined
// and the user index, then closes its send channel. Safe to call more than
// once for the same client.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[client.id]; !ok {
		return
	}
	delete(h.conns, client.id)

	for orderID := range client.rooms {
		if members, ok := h.rooms[orderID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, orderID)
			}
		}
	}

	if client.userID != "" {
		h.dropUserIndexLocked(client)
	}

	close(client.send)
	slog.Info("[HUB] client unregistered", "conn", client.id, "user", client.userID, "total", len(h.conns))
}

func (h *Hub) broadcastToRoom(orderID string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[orderID]))
	for client := range h.rooms[orderID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		slog.Debug("[HUB] no clients in room", "order", orderID)
		return
	}

	sent := 0
	for _, client := range targets {
		if h.trySend(client, payload) {
			sent++
		}
	}
	slog.Debug("[HUB] broadcast complete", "order", orderID, "sent", sent, "members", len(targets))
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for client := range h.users[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		h.trySend(client, payload)
	}
	slog.Debug("[HUB] direct send complete", "user", userID, "connections", len(targets))
}

// trySend enqueues payload without blocking. A client whose buffer is full is
// treated as dead and removed so it cannot stall delivery to others.
func (h *Hub) trySend(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		slog.Warn("[HUB] client send buffer full, disconnecting", "conn", client.id, "user", client.userID)
		h.removeClient(client)
		return false
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.conns {
		delete(h.conns, id)
		close(client.send)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.users = make(map[string]map[*Client]bool)
}

// indexUserLocked and dropUserIndexLocked require h.mu held for writing.

func (h *Hub) indexUserLocked(client *Client) {
	if h.users[client.userID] == nil {
		h.users[client.userID] = make(map[*Client]bool)
	}
	h.users[client.userID][client] = true
}

func (h *Hub) dropUserIndexLocked(client *Client) {
	if conns, ok := h.users[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.userID)
		}
	}
}
