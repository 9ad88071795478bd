// Package wsclient maintains one logical connection to the realtime hub,
// re-establishing it automatically after non-intentional drops.
package wsclient

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"orderstream/internal/models"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const defaultReconnectDelay = 3 * time.Second

// Config describes the session the manager maintains. UserID/UserType and
// OrderID are optional; when set they are sent fire-and-forget right after
// the transport opens.
type Config struct {
	URL      string
	UserID   string
	UserType string
	OrderID  string

	// ReconnectDelay is the fixed delay between a non-intentional close and
	// the next connection attempt. Defaults to 3s.
	ReconnectDelay time.Duration
}

// Handlers are the typed callbacks invoked on inbound messages. All run on
// the manager's read goroutine and must not block.
type Handlers struct {
	OnConnection  func(connectionID string)
	OnAuth        func(userID, userType string)
	OnJoinedOrder func(orderID string)
	OnNewMessage  func(msg models.ChatMessage)
	OnOrderStatus func(orderID string, status models.OrderStatus, order *models.Order)

	// OnGeneric catches every recognized-but-unhandled or unknown type.
	OnGeneric func(msgType string, raw []byte)
}

// Manager is the client-side connection state machine. At most one reconnect
// timer is pending at any time; scheduling a new attempt always cancels the
// previous one.
type Manager struct {
	cfg      Config
	handlers Handlers
	dialer   *websocket.Dialer

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	retry       *time.Timer
	intentional bool
	gen         int

	writeMu sync.Mutex
}

func New(cfg Config, handlers Handlers) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Manager{
		cfg:      cfg,
		handlers: handlers,
		dialer:   websocket.DefaultDialer,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a connection attempt. Calling it while connecting or
// connected is a no-op.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected {
		return
	}

	m.intentional = false
	m.cancelRetryLocked()
	m.state = StateConnecting
	m.gen++
	go m.dial(m.gen)
}

// Disconnect closes the connection with a normal-closure close frame and
// suppresses automatic reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.cancelRetryLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
	}
}

// Send serializes v and transmits it. Returns false without error when the
// manager is not connected.
func (m *Manager) Send(v interface{}) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return false
	}

	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("[MANAGER] failed to marshal outbound message", "error", err)
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Warn("[MANAGER] write failed", "error", err)
		return false
	}
	return true
}

// --- internal ---------------------------------------------------------------

func (m *Manager) dial(gen int) {
	conn, _, err := m.dialer.Dial(m.cfg.URL, nil)

	m.mu.Lock()
	if gen != m.gen || m.intentional {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		slog.Warn("[MANAGER] dial failed", "url", m.cfg.URL, "error", err)
		m.state = StateDisconnected
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	slog.Info("[MANAGER] connected", "url", m.cfg.URL)

	// Fire-and-forget: connection readiness does not wait for these acks.
	if m.cfg.UserID != "" {
		m.Send(models.ClientMessage{
			Type:     models.TypeAuthenticate,
			UserID:   m.cfg.UserID,
			UserType: m.cfg.UserType,
		})
	}
	if m.cfg.OrderID != "" {
		m.Send(models.ClientMessage{
			Type:    models.TypeJoinOrder,
			OrderID: m.cfg.OrderID,
		})
	}

	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	var closeErr error
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}
		m.dispatch(raw)
	}
	conn.Close()

	// A normal-closure frame from either side means the session ended on
	// purpose; anything else is a transport failure worth retrying.
	peerClosed := websocket.IsCloseError(closeErr, websocket.CloseNormalClosure)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen && m.conn != conn {
		return
	}
	m.conn = nil
	m.state = StateDisconnected

	if m.intentional || peerClosed {
		slog.Info("[MANAGER] disconnected", "intentional", true)
		return
	}

	slog.Warn("[MANAGER] connection lost, scheduling reconnect", "delay", m.cfg.ReconnectDelay, "error", closeErr)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single retry timer. Requires m.mu held.
func (m *Manager) scheduleReconnectLocked() {
	m.cancelRetryLocked()
	m.retry = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.retry = nil
		if m.state != StateDisconnected || m.intentional {
			return
		}
		m.state = StateConnecting
		m.gen++
		go m.dial(m.gen)
	})
}

func (m *Manager) cancelRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// dispatch switches on the inbound frame's type and invokes the matching
// callback. Malformed payloads are logged and dropped.
func (m *Manager) dispatch(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Error("[MANAGER] error unmarshaling message", "error", err)
		return
	}

	switch envelope.Type {
	case models.TypeConnection:
		var msg models.ConnectionAck
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("[MANAGER] malformed connection ack", "error", err)
			return
		}
		if m.handlers.OnConnection != nil {
			m.handlers.OnConnection(msg.ConnectionID)
		}

	case models.TypeAuthenticated:
		var msg models.AuthAck
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("[MANAGER] malformed auth ack", "error", err)
			return
		}
		if m.handlers.OnAuth != nil {
			m.handlers.OnAuth(msg.UserID, msg.UserType)
		}

	case models.TypeJoinedOrder:
		var msg models.JoinedOrderAck
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("[MANAGER] malformed joined_order ack", "error", err)
			return
		}
		if m.handlers.OnJoinedOrder != nil {
			m.handlers.OnJoinedOrder(msg.OrderID)
		}

	case models.TypeNewMessage:
		var msg models.NewMessageEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("[MANAGER] malformed new_message event", "error", err)
			return
		}
		if m.handlers.OnNewMessage != nil {
			m.handlers.OnNewMessage(msg.Message)
		}

	case models.TypeStatusUpdated, models.TypeOrderStatusUpdated:
		var msg models.OrderStatusEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("[MANAGER] malformed status event", "error", err)
			return
		}
		if m.handlers.OnOrderStatus != nil {
			m.handlers.OnOrderStatus(msg.OrderID, msg.Status, msg.Order)
		}

	default:
		if m.handlers.OnGeneric != nil {
			m.handlers.OnGeneric(envelope.Type, raw)
			return
		}
		slog.Warn("[MANAGER] unknown message type", "type", envelope.Type)
	}
}
