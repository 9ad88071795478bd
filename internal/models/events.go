package models

// Client -> server message types.
const (
	TypeAuthenticate = "authenticate"
	TypeJoinOrder    = "join_order"
)

// Server -> client message types.
const (
	TypeConnection         = "connection"
	TypeAuthenticated      = "authenticated"
	TypeJoinedOrder        = "joined_order"
	TypeNewMessage         = "new_message"
	TypeStatusUpdated      = "status_updated"
	TypeOrderStatusUpdated = "order_status_updated"
)

// User kinds bound to a connection by authenticate.
const (
	UserTypeCustomer   = "customer"
	UserTypeRestaurant = "restaurant"
)

// ClientMessage is the inbound frame shape. Fields are a union across all
// client message types; the type switch decides which ones matter.
type ClientMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	UserType string `json:"userType,omitempty"`
	OrderID  string `json:"orderId,omitempty"`
}

type ConnectionAck struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type AuthAck struct {
	Type     string `json:"type"`
	UserType string `json:"userType"`
	UserID   string `json:"userId"`
}

type JoinedOrderAck struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// NewMessageEvent pushes a chat message to an order room.
type NewMessageEvent struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// OrderStatusEvent is sent as "order_status_updated" to the order room and as
// "status_updated" directly to the customer's connections.
type OrderStatusEvent struct {
	Type    string      `json:"type"`
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Order   *Order      `json:"order,omitempty"`
}

func NewConnectionAck(connectionID string) ConnectionAck {
	return ConnectionAck{Type: TypeConnection, ConnectionID: connectionID}
}

func NewAuthAck(userID, userType string) AuthAck {
	return AuthAck{Type: TypeAuthenticated, UserType: userType, UserID: userID}
}

func NewJoinedOrderAck(orderID string) JoinedOrderAck {
	return JoinedOrderAck{Type: TypeJoinedOrder, OrderID: orderID}
}

func NewChatMessageEvent(msg ChatMessage) NewMessageEvent {
	return NewMessageEvent{Type: TypeNewMessage, Message: msg}
}

func NewOrderStatusEvent(msgType string, order *Order) OrderStatusEvent {
	return OrderStatusEvent{
		Type:    msgType,
		OrderID: order.ID.String(),
		Status:  order.Status,
		Order:   order,
	}
}
